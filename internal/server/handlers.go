package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kkkkikiki/referral/internal/model"
	"github.com/kkkkikiki/referral/internal/service"
)

type generateReferralRequest struct {
	UserID     flexID `json:"userId"`
	CampaignID flexID `json:"campaignId"`
}

type generateQRRequest struct {
	UserID     flexID `json:"user_id"`
	CampaignID flexID `json:"campaign_id"`
}

// decodeJSON reads a small JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body", service.ErrValidation)
	}
	return nil
}

func (s *Server) handleGenerateReferral(w http.ResponseWriter, r *http.Request) {
	var req generateReferralRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, "generate referral", err)
		return
	}
	userID, campaignID := int64(req.UserID), int64(req.CampaignID)

	code, err := s.svc.Referrals.Issue(r.Context(), campaignID, userID)
	if err != nil {
		s.fail(w, r, "generate referral", err, "user_id", userID, "campaign_id", campaignID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": s.svc.Referrals.URL(code)})
}

func (s *Server) handleReferralTotal(w http.ResponseWriter, r *http.Request) {
	userID, campaignID, err := pairFromQuery(r)
	if err != nil {
		s.fail(w, r, "referral total", err)
		return
	}

	total, err := s.svc.Query.HitsOrZero(r.Context(), userID, campaignID)
	if err != nil {
		s.fail(w, r, "referral total", err, "user_id", userID, "campaign_id", campaignID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"total": total})
}

func (s *Server) handleGenerateQR(w http.ResponseWriter, r *http.Request) {
	var req generateQRRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, "generate qr", err)
		return
	}
	userID, campaignID := int64(req.UserID), int64(req.CampaignID)

	token, err := s.svc.QRCodes.Issue(r.Context(), userID, campaignID)
	if err != nil {
		s.fail(w, r, "generate qr", err, "user_id", userID, "campaign_id", campaignID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"qr_token": token})
}

// handleScan answers in plain text because its callers are browsers
// following a printed QR code.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	target, err := s.svc.Scans.Scan(r.Context(), token)
	if err != nil {
		status, msg := statusFor(err)
		attrs := []any{"op", "scan", "error", err, "request_id", RequestIDFromContext(r.Context())}
		if status == http.StatusInternalServerError {
			s.logger.ErrorContext(r.Context(), "scan failed", attrs...)
		} else {
			s.logger.DebugContext(r.Context(), "scan rejected", attrs...)
		}
		switch status {
		case http.StatusBadRequest:
			msg = "token required"
		case http.StatusNotFound:
			msg = "invalid token"
		}
		if service.IsRetryable(err) {
			w.Header().Set("Retry-After", "1")
		}
		http.Error(w, msg, status)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleReferrals(w http.ResponseWriter, r *http.Request) {
	userID, err := parseID("user_id", r.PathValue("user_id"))
	if err != nil {
		s.fail(w, r, "get referrals", err)
		return
	}
	campaignID, err := parseID("campaign_id", r.PathValue("campaign_id"))
	if err != nil {
		s.fail(w, r, "get referrals", err)
		return
	}

	referrals, err := s.svc.Query.GetReferralTotal(r.Context(), userID, campaignID)
	if err != nil {
		s.fail(w, r, "get referrals", err, "user_id", userID, "campaign_id", campaignID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"referrals": referrals})
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	// Headroom over the image limit for the other form fields.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxImageBytes+1<<20)
	if err := r.ParseMultipartForm(s.maxImageBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "image too large")
			return
		}
		s.fail(w, r, "create campaign", fmt.Errorf("%w: expected multipart form", service.ErrValidation))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	userID, err := parseID("user_id", r.FormValue("user_id"))
	if err != nil {
		s.fail(w, r, "create campaign", err)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.fail(w, r, "create campaign", fmt.Errorf("%w: image is required", service.ErrValidation))
		return
	}
	defer file.Close()

	if header.Size > s.maxImageBytes {
		writeError(w, r, http.StatusRequestEntityTooLarge, "image too large")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		s.fail(w, r, "create campaign", fmt.Errorf("%w: unreadable image", service.ErrValidation))
		return
	}

	imageType := header.Header.Get("Content-Type")
	if imageType == "" || imageType == "application/octet-stream" {
		imageType = http.DetectContentType(data)
	}

	campaign := &model.Campaign{
		UserID:      userID,
		Description: r.FormValue("description"),
		ImageData:   data,
		ImageType:   strings.TrimSpace(imageType),
	}
	if err := s.svc.Campaigns.CreateCampaign(r.Context(), campaign); err != nil {
		s.fail(w, r, "create campaign", err, "user_id", userID)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "campaign created",
		"id":      campaign.ID,
	})
}

func (s *Server) handleUserCampaigns(w http.ResponseWriter, r *http.Request) {
	userID, err := parseID("user_id", r.URL.Query().Get("user_id"))
	if err != nil {
		s.fail(w, r, "list campaigns", err)
		return
	}

	campaigns, err := s.svc.Query.ListCampaigns(r.Context(), userID)
	if err != nil {
		s.fail(w, r, "list campaigns", err, "user_id", userID)
		return
	}
	if campaigns == nil {
		campaigns = []model.Campaign{}
	}
	writeJSON(w, http.StatusOK, campaigns)
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "get campaign", err)
		return
	}

	campaign, err := s.svc.Query.GetCampaign(r.Context(), id)
	if err != nil {
		s.fail(w, r, "get campaign", err, "campaign_id", id)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (s *Server) handleGetUserID(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")

	userID, err := s.svc.Query.ResolveUserID(r.Context(), username)
	if err != nil {
		s.fail(w, r, "get user id", err, "username", username)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"user_id": userID})
}

func pairFromQuery(r *http.Request) (userID, campaignID int64, err error) {
	q := r.URL.Query()
	if userID, err = parseID("user_id", q.Get("user_id")); err != nil {
		return 0, 0, err
	}
	if campaignID, err = parseID("campaign_id", q.Get("campaign_id")); err != nil {
		return 0, 0, err
	}
	return userID, campaignID, nil
}
