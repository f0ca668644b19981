package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"vidgen/internal/generation"
	"vidgen/internal/media"
	"vidgen/internal/studio"
	"vidgen/types"

	"github.com/gofiber/fiber/v2"
)

func (a *Api) Health() fiber.Handler {
	return func(ctx *fiber.Ctx) error {

		return ctx.Status(fiber.StatusOK).JSON(types.HealthResponse{
			Status:    fiber.StatusOK,
			TimeStamp: time.Now().Unix(),
		})
	}
}

func (a *Api) State() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(a.studio.Snapshot())
	}
}

func (a *Api) UpdateDraft() fiber.Handler {
	return func(ctx *fiber.Ctx) error {

		var requestBody types.DraftRequest
		if err := ctx.BodyParser(&requestBody); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
				Error:   err.Error(),
				Message: "invalid body",
			})
		}

		if err := a.applyDraft(requestBody.Prompt, requestBody.AspectRatio); err != nil {
			return a.fail(ctx, "draft", err, "failed to update draft")
		}

		return ctx.Status(fiber.StatusOK).JSON(a.studio.Snapshot())
	}
}

func (a *Api) Generate() fiber.Handler {
	return func(ctx *fiber.Ctx) error {

		var requestBody types.GenerateRequest
		if len(ctx.Body()) > 0 {
			if err := ctx.BodyParser(&requestBody); err != nil {
				return ctx.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
					Error:   err.Error(),
					Message: "invalid body",
				})
			}
		}

		if err := a.applyDraft(requestBody.Prompt, requestBody.AspectRatio); err != nil {
			return a.fail(ctx, "generate", err, "failed to update draft")
		}

		snap, err := a.studio.Generate()
		if err != nil {
			msg := "failed to start generation"
			if errors.Is(err, studio.ErrEmptyPrompt) {
				msg = snap.Error
			}
			return a.fail(ctx, "generate", err, msg)
		}

		return ctx.Status(fiber.StatusAccepted).JSON(snap)
	}
}

func (a *Api) Cancel() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		snap, err := a.studio.Cancel()
		if err != nil {
			return a.fail(ctx, "cancel", err, "nothing to cancel")
		}
		return ctx.Status(fiber.StatusOK).JSON(snap)
	}
}

func (a *Api) CredentialStatus() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(types.CredentialResponse{
			HasKey: a.studio.Snapshot().HasCredential,
		})
	}
}

// SelectCredential is the browser's key picker. The key is trusted until a
// generation proves otherwise.
func (a *Api) SelectCredential() fiber.Handler {
	return func(ctx *fiber.Ctx) error {

		var requestBody types.CredentialRequest
		if len(ctx.Body()) > 0 {
			if err := ctx.BodyParser(&requestBody); err != nil {
				return ctx.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
					Error:   err.Error(),
					Message: "invalid body",
				})
			}
		}

		if key := strings.TrimSpace(requestBody.APIKey); key != "" && a.keys != nil {
			a.keys.Select(key)
		}

		snap, err := a.studio.RequestCredential(ctx.UserContext())
		if err != nil {
			return a.fail(ctx, "credential", err, "credential selection failed")
		}
		return ctx.Status(fiber.StatusOK).JSON(snap)
	}
}

func (a *Api) Media() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		id := ctx.Params("id")

		obj, err := a.media.Open(ctx.UserContext(), id)
		if err != nil {
			if errors.Is(err, media.ErrNotFound) {
				return ctx.Status(fiber.StatusNotFound).JSON(types.ErrorResponse{
					Error:   err.Error(),
					Message: "unknown media id",
				})
			}
			return a.fail(ctx, "media", err, "failed to read media")
		}

		ctx.Set(fiber.HeaderContentType, obj.ContentType)
		if obj.Filename != "" {
			ctx.Set(fiber.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", obj.Filename))
		}
		ctx.Response().SetBodyRaw(obj.Data)
		return nil
	}
}

func (a *Api) applyDraft(prompt, aspectRatio *string) error {
	if aspectRatio != nil {
		ratio, err := generation.ParseAspectRatio(*aspectRatio)
		if err != nil {
			return err
		}
		if _, err := a.studio.SetAspectRatio(ratio); err != nil {
			return err
		}
	}
	if prompt != nil {
		if _, err := a.studio.SetPrompt(*prompt); err != nil {
			return err
		}
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, studio.ErrBusy), errors.Is(err, studio.ErrNotBusy):
		return fiber.StatusConflict
	case errors.Is(err, studio.ErrEmptyPrompt), errors.Is(err, generation.ErrInvalidAspectRatio):
		return fiber.StatusBadRequest
	case errors.Is(err, studio.ErrCredentialRequired):
		return fiber.StatusPreconditionFailed
	case errors.Is(err, studio.ErrClosed):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func (a *Api) fail(ctx *fiber.Ctx, action string, err error, message string) error {
	code := statusFor(err)
	if code >= fiber.StatusInternalServerError {
		HttpLogger(action, ctx).Error(message, "err", err)
	} else {
		HttpLogger(action, ctx).Debug(message, "status", code, "err", err)
	}
	return ctx.Status(code).JSON(types.ErrorResponse{
		Error:   err.Error(),
		Message: message,
	})
}
