package handlers

import (
	"encoding/json"
	"net/http"
)

// OTPRequest represents the code issue request body.
type OTPRequest struct {
	PhoneNumber string `json:"phone_number"`
}

// OTPVerifyRequest represents the code verification request body.
type OTPVerifyRequest struct {
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
}

// IssueOTP handles one-time code issuance for a phone number.
func (h *Handler) IssueOTP(w http.ResponseWriter, r *http.Request) {
	var req OTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !isValidPhone(req.PhoneNumber) {
		h.Error(w, http.StatusBadRequest, "invalid phone_number format")
		return
	}

	if err := h.otp.Issue(r.Context(), req.PhoneNumber); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to issue code")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "code sent"})
}

// VerifyOTP handles one-time code verification.
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req OTPVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PhoneNumber == "" || req.Code == "" {
		h.Error(w, http.StatusBadRequest, "phone_number and code are required")
		return
	}

	if !h.otp.Verify(r.Context(), req.PhoneNumber, req.Code) {
		h.Error(w, http.StatusForbidden, "invalid or expired code")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "verified"})
}
