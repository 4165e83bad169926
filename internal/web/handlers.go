package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/vitos/lendflow/internal/domain"
	"github.com/vitos/lendflow/internal/usecase"
	"go.uber.org/zap"
)

func (s *Server) form(w http.ResponseWriter, r *http.Request) (usecase.Form, bool) {
	name := r.PathValue("form")
	f, ok := s.app.Form(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown form "+name)
	}
	return f, ok
}

func (s *Server) handleFormView(w http.ResponseWriter, r *http.Request) {
	f, ok := s.form(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, f.View())
}

type formValuesRequest struct {
	Chain    domain.ChainID    `json:"chain"`
	FormType domain.FormType   `json:"form_type"`
	Account  string            `json:"account"`
	Market   string            `json:"market"`
	Values   map[string]string `json:"values"`
}

func (s *Server) handleSetFormValues(w http.ResponseWriter, r *http.Request) {
	f, ok := s.form(w, r)
	if !ok {
		return
	}
	var req formValuesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}
	if req.Chain == "" || req.Market == "" {
		s.writeError(w, http.StatusBadRequest, "chain and market are required")
		return
	}
	f.SetFormValues(r.Context(), req.Chain, req.FormType, req.Account, req.Market, req.Values)
	s.writeJSON(w, http.StatusOK, f.View())
}

// handleRunStep submits a step. Transaction failures are reported in the
// form status, not as an HTTP error.
func (s *Server) handleRunStep(w http.ResponseWriter, r *http.Request) {
	f, ok := s.form(w, r)
	if !ok {
		return
	}
	step := strings.ToUpper(r.PathValue("step"))

	// A submitted transaction must not be abandoned when the client goes away.
	ctx := context.WithoutCancel(r.Context())
	err := f.RunStep(ctx, step)
	switch {
	case errors.Is(err, domain.ErrUnknownStep):
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, domain.ErrStepBusy), errors.Is(err, domain.ErrStepNotActionable):
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, f.View())
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	chain := domain.ChainID(r.URL.Query().Get("chain"))
	if chain == "" {
		s.writeError(w, http.StatusBadRequest, "chain is required")
		return
	}
	// Failures are part of the view.
	s.app.Markets.FetchMarkets(r.Context(), chain, false)
	s.writeJSON(w, http.StatusOK, s.app.Markets.View(chain))
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	chain := domain.ChainID(r.URL.Query().Get("chain"))
	id := r.PathValue("id")
	if chain == "" {
		s.writeError(w, http.StatusBadRequest, "chain is required")
		return
	}
	m, err := s.app.Markets.GetOneWayMarket(r.Context(), chain, id, false)
	if errors.Is(err, domain.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "market not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

// handleLoans accepts a comma separated list of markets for one account.
func (s *Server) handleLoans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	chain := domain.ChainID(q.Get("chain"))
	account := q.Get("account")
	if chain == "" || account == "" {
		s.writeError(w, http.StatusBadRequest, "chain and account are required")
		return
	}

	var refs []usecase.LoanRef
	for _, m := range strings.Split(q.Get("markets"), ",") {
		if m = strings.TrimSpace(m); m != "" {
			refs = append(refs, usecase.LoanRef{Chain: chain, Market: m, Account: account})
		}
	}
	refetch, _ := strconv.ParseBool(q.Get("refetch"))
	s.app.LoanDetails.FetchLoanDetails(r.Context(), refs, refetch)

	views := make([]usecase.LoanView, 0, len(refs))
	for _, ref := range refs {
		e, _ := s.app.LoanDetails.Get(ref)
		views = append(views, usecase.LoanView{LoanRef: ref, Details: e.Data, Loading: e.Loading, Error: e.Error})
	}
	s.writeJSON(w, http.StatusOK, views)
}

type pricesResponse struct {
	Chain   domain.ChainID    `json:"chain"`
	Address string            `json:"address"`
	Range   string            `json:"range"`
	Series  domain.TimeSeries `json:"series"`
	Error   string            `json:"error,omitempty"`
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	chain := domain.ChainID(q.Get("chain"))
	address := q.Get("address")
	rng := q.Get("range")
	if chain == "" || address == "" {
		s.writeError(w, http.StatusBadRequest, "chain and address are required")
		return
	}
	if rng == "" {
		rng = usecase.DefaultPriceRange
	}
	series, err := s.app.Prices.FetchPriceHistory(r.Context(), chain, address, rng, false)
	resp := pricesResponse{Chain: chain, Address: address, Range: rng, Series: series}
	if err != nil {
		resp.Error = err.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	records, err := s.app.TxLog.List(r.Context(), q.Get("account"), limit)
	if err != nil {
		s.logger.Error("Failed to list tx history", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Failed to list history")
		return
	}
	if records == nil {
		records = []*domain.TxRecord{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

type visibilityRequest struct {
	Visible bool `json:"visible"`
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}
	if req.Visible && !s.app.Poller.Visible() {
		// Refresh in the background; the page polls the views.
		go s.app.Poller.SetVisible(context.WithoutCancel(r.Context()), true)
	} else {
		s.app.Poller.SetVisible(r.Context(), req.Visible)
	}
	w.WriteHeader(http.StatusNoContent)
}

type walletRequest struct {
	Address string `json:"address"`
}

type walletResponse struct {
	Address string `json:"address,omitempty"`
}

func (s *Server) handleConnectWallet(w http.ResponseWriter, r *http.Request) {
	var req walletRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}
	if err := s.wallet.Connect(req.Address); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, walletResponse{Address: s.wallet.Signer().Address()})
}

func (s *Server) handleDisconnectWallet(w http.ResponseWriter, r *http.Request) {
	s.wallet.Disconnect()
	w.WriteHeader(http.StatusNoContent)
}
