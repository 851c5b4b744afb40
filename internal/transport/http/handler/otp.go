package handler

import (
	"net/http"

	"github.com/goaltrack-api/internal/application/otp"
	"github.com/goaltrack-api/internal/domain"
)

type otpSendRequest struct {
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"omitempty,phone"`
	Type  string `json:"type" validate:"omitempty,oneof=registration login password_reset"`
}

type otpVerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"omitempty,phone"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
	Type  string `json:"type" validate:"omitempty,oneof=registration login password_reset"`
}

type otpSendResponse struct {
	Success   bool   `json:"success"`
	Phone     string `json:"phone,omitempty"`
	ExpiresIn int    `json:"expiresIn"`
	Type      string `json:"type"`
	Reused    bool   `json:"reused"`
	Message   string `json:"message"`
}

type otpVerifyResponse struct {
	AuthEnvelope
	Type  string `json:"type"`
	Phone string `json:"phone,omitempty"`
}

// OTPHandler serves POST /otp.
type OTPHandler struct {
	svc otp.Service
}

func NewOTPHandler(svc otp.Service) *OTPHandler { return &OTPHandler{svc: svc} }

func (h *OTPHandler) Action(w http.ResponseWriter, r *http.Request) {
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
	case "send":
		var req otpSendRequest
		if err := decodeVariant(body, &req); err != nil {
			httpError(w, r, err)
			return
		}
		h.send(w, r, req)
	case "verify":
		var req otpVerifyRequest
		if err := decodeVariant(body, &req); err != nil {
			httpError(w, r, err)
			return
		}
		h.verify(w, r, req)
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

func (h *OTPHandler) send(w http.ResponseWriter, r *http.Request, req otpSendRequest) {
	t, err := optionalType(req.Type)
	if err != nil {
		httpError(w, r, err)
		return
	}
	res, err := h.svc.Send(r.Context(), otp.SendRequest{Email: normalizeEmail(req.Email), Phone: req.Phone, Type: t})
	if err != nil {
		httpError(w, r, err)
		return
	}
	msg := "verification code sent"
	if res.Reused {
		msg = "verification code already sent"
	}
	writeJSON(w, http.StatusOK, otpSendResponse{
		Success:   true,
		Phone:     res.Phone,
		ExpiresIn: res.ExpiresIn,
		Type:      string(res.Type),
		Reused:    res.Reused,
		Message:   msg,
	})
}

func (h *OTPHandler) verify(w http.ResponseWriter, r *http.Request, req otpVerifyRequest) {
	t, err := optionalType(req.Type)
	if err != nil {
		httpError(w, r, err)
		return
	}
	res, err := h.svc.Verify(r.Context(), otp.VerifyRequest{
		Email: normalizeEmail(req.Email),
		Phone: req.Phone,
		Code:  req.OTP,
		Type:  t,
	})
	if err != nil {
		httpError(w, r, err)
		return
	}
	out := otpVerifyResponse{Type: string(res.Type), Phone: res.Phone}
	if res.Session != nil {
		out.AuthEnvelope = authEnvelope(res.Session)
	}
	out.Success = true
	out.Message = "verified"
	writeJSON(w, http.StatusOK, out)
}

func optionalType(s string) (domain.OTPType, error) {
	if s == "" {
		return "", nil
	}
	return domain.ParseOTPType(s)
}
