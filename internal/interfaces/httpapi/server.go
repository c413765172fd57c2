package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fundsync/internal/application"
	"fundsync/internal/domain"
)

type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

type Server struct {
	service   *application.Service
	store     application.CacheStore
	metrics   *Metrics
	buildInfo BuildInfo
}

func NewServer(service *application.Service, store application.CacheStore, metrics *Metrics, buildInfo BuildInfo) (*Server, error) {
	if service == nil || store == nil {
		return nil, errors.New("http server dependencies must not be nil")
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Server{service: service, store: store, metrics: metrics, buildInfo: buildInfo}, nil
}

func (s *Server) MetricsObserver() *Metrics {
	return s.metrics
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/campaigns", s.handleCampaigns)
	mux.HandleFunc("/campaigns/", s.handleCampaign)
	mux.HandleFunc("/donations", s.handleDonate)
	mux.HandleFunc("/sync", s.handleSync)
	mux.HandleFunc("/owners/", s.handleOwnerCampaigns)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/version", s.handleVersion)
	return mux
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "cache store not ready")
		return
	}
	// An unconfigured ledger is a valid degraded state; only probe when
	// a client was injected.
	if s.service.Configured() {
		if _, err := s.service.GetCampaign(ctx, 1); err != nil &&
			!errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusServiceUnavailable, "ledger not ready")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type campaignView struct {
	ID              uint64 `json:"id"`
	Creator         string `json:"creator"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	Goal            uint64 `json:"goal"`
	Deadline        uint64 `json:"deadline"`
	AmountCollected uint64 `json:"amount_collected"`
}

func toCampaignView(campaign domain.Campaign) campaignView {
	return campaignView{
		ID:              campaign.ID,
		Creator:         campaign.Creator,
		Title:           campaign.Title,
		Description:     campaign.Description,
		Goal:            campaign.Goal,
		Deadline:        campaign.Deadline,
		AmountCollected: campaign.AmountCollected,
	}
}

func (s *Server) handleCampaigns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listCampaigns(w, r)
	case http.MethodPost:
		s.createCampaign(w, r)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// listCampaigns always renders a sequence: an unconfigured or unreachable
// ledger yields an empty list, never an error.
func (s *Server) listCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns := s.service.ListCampaigns(r.Context())
	views := make([]campaignView, 0, len(campaigns))
	for _, campaign := range campaigns {
		views = append(views, toCampaignView(campaign))
	}
	respondJSON(w, http.StatusOK, views)
}

type createRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Goal         uint64 `json:"goal"`
	DurationDays uint64 `json:"duration_days"`
	OwnerRef     string `json:"owner_ref"`
}

func (s *Server) createCampaign(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Description) == "" {
		respondError(w, http.StatusBadRequest, "title and description are required")
		return
	}
	if req.Goal == 0 || req.DurationDays == 0 {
		respondError(w, http.StatusBadRequest, "goal and duration_days are required")
		return
	}

	result, err := s.service.CreateCampaign(r.Context(), application.CreateRequest{
		Title:        req.Title,
		Description:  req.Description,
		Goal:         req.Goal,
		DurationDays: req.DurationDays,
		OwnerRef:     req.OwnerRef,
	})
	if err != nil {
		if errors.Is(err, domain.ErrIdentifierUnresolved) {
			// The ledger write succeeded; only the identifier is pending a
			// deferred reconciliation pass.
			respondJSON(w, http.StatusInternalServerError, map[string]string{
				"error":   err.Error(),
				"tx_hash": result.TxHash,
			})
			return
		}
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"tx_hash":     result.TxHash,
		"campaign_id": result.CampaignID,
		"provisional": result.Provisional,
	})
}

func (s *Server) handleCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := campaignIDFromPath(r.URL.Path, "/campaigns/")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid campaign id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		campaign, err := s.service.GetCampaign(r.Context(), id)
		if err != nil {
			s.respondServiceError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, toCampaignView(campaign))
	case http.MethodDelete:
		if err := s.service.SoftDelete(r.Context(), id); err != nil {
			s.respondServiceError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type donateRequest struct {
	CampaignID uint64 `json:"campaign_id"`
	Amount     uint64 `json:"amount"`
}

func (s *Server) handleDonate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req donateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CampaignID == 0 || req.Amount == 0 {
		respondError(w, http.StatusBadRequest, "campaign_id and amount are required")
		return
	}

	result, err := s.service.Donate(r.Context(), req.CampaignID, req.Amount)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"tx_hash": result.TxHash})
}

type syncRequest struct {
	CampaignID uint64 `json:"campaign_id"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CampaignID == 0 {
		respondError(w, http.StatusBadRequest, "campaign_id is required")
		return
	}

	amount, err := s.service.Sync(r.Context(), req.CampaignID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]uint64{"raised_amount": amount})
}

type recordView struct {
	CampaignID   uint64 `json:"campaign_id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	TargetGoal   uint64 `json:"target_goal"`
	RaisedAmount uint64 `json:"raised_amount"`
	OwnerRef     string `json:"owner_ref"`
	TxHash       string `json:"tx_hash"`
}

func (s *Server) handleOwnerCampaigns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/owners/")
	ownerRef, tail, ok := strings.Cut(rest, "/")
	if !ok || tail != "campaigns" || ownerRef == "" {
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	records, err := s.service.ListByOwner(r.Context(), ownerRef)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "owner listing failed")
		return
	}
	views := make([]recordView, 0, len(records))
	for _, record := range records {
		views = append(views, recordView{
			CampaignID:   record.CampaignID,
			Title:        record.Title,
			Description:  record.Description,
			TargetGoal:   record.TargetGoal,
			RaisedAmount: record.RaisedAmount,
			OwnerRef:     record.OwnerRef,
			TxHash:       record.TxHash,
		})
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	snap := s.metrics.Snapshot()

	uptime := time.Since(snap.StartTime).Seconds()
	fmt.Fprintf(w, "fundsync_uptime_seconds %.0f\n", uptime)
	fmt.Fprintf(w, "fundsync_creates_total %d\n", snap.CreatesTotal)
	fmt.Fprintf(w, "fundsync_provisional_resolutions_total %d\n", snap.ProvisionalResolutions)
	fmt.Fprintf(w, "fundsync_last_resolved_id %d\n", snap.LastResolvedID)
	fmt.Fprintf(w, "fundsync_donations_total %d\n", snap.DonationsTotal)
	fmt.Fprintf(w, "fundsync_donated_amount_total %d\n", snap.DonatedAmountTotal)
	fmt.Fprintf(w, "fundsync_reconciles_total %d\n", snap.ReconcilesTotal)
	fmt.Fprintf(w, "fundsync_last_reconciled_id %d\n", snap.LastReconciledID)
	fmt.Fprintf(w, "fundsync_last_reconciled_amount %d\n", snap.LastReconciledAmount)
	fmt.Fprintf(w, "fundsync_cache_failures_total %d\n", snap.CacheFailures)
	for op, count := range snap.CacheFailuresByOp {
		fmt.Fprintf(w, "fundsync_cache_failures_total{op=%q} %d\n", op, count)
	}
	fmt.Fprintf(w, "fundsync_deferred_queued_total %d\n", snap.DeferredQueued)
	fmt.Fprintf(w, "fundsync_queue_errors_total %d\n", snap.QueueErrors)
	fmt.Fprintf(w, "fundsync_worker_messages_total %d\n", snap.WorkerMessages)
	fmt.Fprintf(w, "fundsync_worker_errors_total %d\n", snap.WorkerErrors)
	fmt.Fprintf(w, "fundsync_worker_dropped_total %d\n", snap.WorkerDropped)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.buildInfo)
}

// respondServiceError maps the error taxonomy onto the API's status
// conventions: 503 for an unconfigured ledger, 404 for a missing campaign,
// 500 for everything else. Ledger rejection reasons pass through verbatim.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrLedgerUnconfigured):
		respondError(w, http.StatusServiceUnavailable, "ledger client not configured")
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, "campaign not found")
	case errors.Is(err, domain.ErrReverted):
		respondError(w, http.StatusInternalServerError, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func campaignIDFromPath(path, prefix string) (uint64, error) {
	raw := strings.TrimPrefix(path, prefix)
	if raw == "" || strings.Contains(raw, "/") {
		return 0, errors.New("invalid path")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid campaign id")
	}
	return id, nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
