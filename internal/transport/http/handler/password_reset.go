package handler

import (
	"net/http"

	"github.com/goaltrack-api/internal/application/passwordreset"
)

type resetSendRequest struct {
	Phone string `json:"phone" validate:"required,phone"`
}

type resetVerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

// Length is enforced by the service so the message matches the other flows.
type resetPasswordRequest struct {
	ResetToken  string `json:"resetToken" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

type resetVerifyResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	ResetToken string `json:"resetToken"`
}

// PasswordResetHandler serves POST /password-reset.
type PasswordResetHandler struct {
	svc passwordreset.Service
}

func NewPasswordResetHandler(svc passwordreset.Service) *PasswordResetHandler {
	return &PasswordResetHandler{svc: svc}
}

func (h *PasswordResetHandler) Action(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		httpError(w, r, err)
		return
	}
	action, err := actionOf(body)
	if err != nil {
		httpError(w, r, err)
		return
	}
	switch action {
	case "send-otp":
		var req resetSendRequest
		if err := decodeVariant(body, &req); err != nil {
			httpError(w, r, err)
			return
		}
		msg, err := h.svc.SendOTP(r.Context(), req.Phone)
		if err != nil {
			httpError(w, r, err)
			return
		}
		writeMessage(w, http.StatusOK, msg)
	case "verify-otp":
		var req resetVerifyRequest
		if err := decodeVariant(body, &req); err != nil {
			httpError(w, r, err)
			return
		}
		tok, err := h.svc.VerifyOTP(r.Context(), req.Email, req.OTP)
		if err != nil {
			httpError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resetVerifyResponse{Success: true, Message: "code verified", ResetToken: tok})
	case "reset-password":
		var req resetPasswordRequest
		if err := decodeVariant(body, &req); err != nil {
			httpError(w, r, err)
			return
		}
		if err := h.svc.ResetPassword(r.Context(), req.ResetToken, req.NewPassword); err != nil {
			httpError(w, r, err)
			return
		}
		writeMessage(w, http.StatusOK, "password updated")
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}
