package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/kkkkikiki/referral/internal/service"
)

// AttributionServiceName is the fully-qualified name of the RPC service.
const AttributionServiceName = "referral.v1.AttributionService"

// Procedure paths served by the RPC surface.
const (
	IssueReferralProcedure = "/" + AttributionServiceName + "/IssueReferral"
	IssueQRTokenProcedure  = "/" + AttributionServiceName + "/IssueQRToken"
	ScanProcedure          = "/" + AttributionServiceName + "/Scan"
	GetCountersProcedure   = "/" + AttributionServiceName + "/GetCounters"
)

type PairRequest struct {
	UserID     int64 `json:"user_id"`
	CampaignID int64 `json:"campaign_id"`
}

type IssueReferralResponse struct {
	Code string `json:"code"`
	URL  string `json:"url"`
}

type IssueQRTokenResponse struct {
	QRToken string `json:"qr_token"`
}

type ScanRequest struct {
	Token string `json:"token"`
}

// ScanResponse carries the redirect target instead of redirecting.
type ScanResponse struct {
	RedirectURL string `json:"redirect_url"`
}

type GetCountersResponse struct {
	Hits      int64 `json:"hits"`
	Referrals int64 `json:"referrals"`
}

func (s *Server) registerRPC(mux *http.ServeMux) {
	opts := connect.WithHandlerOptions(connect.WithCodec(jsonCodec{}))

	mux.Handle(IssueReferralProcedure, connect.NewUnaryHandler(IssueReferralProcedure, s.issueReferral, opts))
	mux.Handle(IssueQRTokenProcedure, connect.NewUnaryHandler(IssueQRTokenProcedure, s.issueQRToken, opts))
	mux.Handle(ScanProcedure, connect.NewUnaryHandler(ScanProcedure, s.scan, opts))
	mux.Handle(GetCountersProcedure, connect.NewUnaryHandler(GetCountersProcedure, s.getCounters, opts))
}

func (s *Server) issueReferral(ctx context.Context, req *connect.Request[PairRequest]) (*connect.Response[IssueReferralResponse], error) {
	code, err := s.svc.Referrals.Issue(ctx, req.Msg.CampaignID, req.Msg.UserID)
	if err != nil {
		return nil, s.connectError(ctx, "issue referral", err)
	}
	return connect.NewResponse(&IssueReferralResponse{
		Code: code,
		URL:  s.svc.Referrals.URL(code),
	}), nil
}

func (s *Server) issueQRToken(ctx context.Context, req *connect.Request[PairRequest]) (*connect.Response[IssueQRTokenResponse], error) {
	token, err := s.svc.QRCodes.Issue(ctx, req.Msg.UserID, req.Msg.CampaignID)
	if err != nil {
		return nil, s.connectError(ctx, "issue qr token", err)
	}
	return connect.NewResponse(&IssueQRTokenResponse{QRToken: token}), nil
}

func (s *Server) scan(ctx context.Context, req *connect.Request[ScanRequest]) (*connect.Response[ScanResponse], error) {
	target, err := s.svc.Scans.Scan(ctx, req.Msg.Token)
	if err != nil {
		return nil, s.connectError(ctx, "scan", err)
	}
	return connect.NewResponse(&ScanResponse{RedirectURL: target}), nil
}

func (s *Server) getCounters(ctx context.Context, req *connect.Request[PairRequest]) (*connect.Response[GetCountersResponse], error) {
	counters, err := s.svc.Query.GetCounters(ctx, req.Msg.UserID, req.Msg.CampaignID)
	if err != nil {
		return nil, s.connectError(ctx, "get counters", err)
	}
	return connect.NewResponse(&GetCountersResponse{
		Hits:      counters.Hits,
		Referrals: counters.Referrals,
	}), nil
}

// connectError maps a service error to a Connect code and logs store failures.
func (s *Server) connectError(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, service.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	}

	s.logger.ErrorContext(ctx, "rpc failed", "op", op, "error", err, "request_id", RequestIDFromContext(ctx))
	if service.IsRetryable(err) {
		return connect.NewError(connect.CodeUnavailable, errors.New(op+": store temporarily unavailable"))
	}
	return connect.NewError(connect.CodeInternal, errors.New(op+": internal error"))
}

// AttributionClient calls the RPC surface of a running server.
type AttributionClient struct {
	issueReferral *connect.Client[PairRequest, IssueReferralResponse]
	issueQRToken  *connect.Client[PairRequest, IssueQRTokenResponse]
	scan          *connect.Client[ScanRequest, ScanResponse]
	getCounters   *connect.Client[PairRequest, GetCountersResponse]
}

// NewAttributionClient creates a client for the server at baseURL.
func NewAttributionClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *AttributionClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &AttributionClient{
		issueReferral: connect.NewClient[PairRequest, IssueReferralResponse](httpClient, baseURL+IssueReferralProcedure, opts...),
		issueQRToken:  connect.NewClient[PairRequest, IssueQRTokenResponse](httpClient, baseURL+IssueQRTokenProcedure, opts...),
		scan:          connect.NewClient[ScanRequest, ScanResponse](httpClient, baseURL+ScanProcedure, opts...),
		getCounters:   connect.NewClient[PairRequest, GetCountersResponse](httpClient, baseURL+GetCountersProcedure, opts...),
	}
}

func (c *AttributionClient) IssueReferral(ctx context.Context, userID, campaignID int64) (*IssueReferralResponse, error) {
	resp, err := c.issueReferral.CallUnary(ctx, connect.NewRequest(&PairRequest{UserID: userID, CampaignID: campaignID}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *AttributionClient) IssueQRToken(ctx context.Context, userID, campaignID int64) (string, error) {
	resp, err := c.issueQRToken.CallUnary(ctx, connect.NewRequest(&PairRequest{UserID: userID, CampaignID: campaignID}))
	if err != nil {
		return "", err
	}
	return resp.Msg.QRToken, nil
}

func (c *AttributionClient) Scan(ctx context.Context, token string) (string, error) {
	resp, err := c.scan.CallUnary(ctx, connect.NewRequest(&ScanRequest{Token: token}))
	if err != nil {
		return "", err
	}
	return resp.Msg.RedirectURL, nil
}

func (c *AttributionClient) GetCounters(ctx context.Context, userID, campaignID int64) (*GetCountersResponse, error) {
	resp, err := c.getCounters.CallUnary(ctx, connect.NewRequest(&PairRequest{UserID: userID, CampaignID: campaignID}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
