package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/savannahcredit/saccoledger/pkg/config"
	"github.com/savannahcredit/saccoledger/pkg/ledger"
	"github.com/savannahcredit/saccoledger/pkg/loan"
	applogger "github.com/savannahcredit/saccoledger/pkg/logger"
	"github.com/savannahcredit/saccoledger/pkg/models"
	"github.com/savannahcredit/saccoledger/pkg/store"
)

// Server wires the loan service and ledger poster behind HTTP handlers.
type Server struct {
	loans   *loan.Service
	poster  *ledger.Poster
	storage store.Storage
	log     *zap.Logger
}

func NewServer(s store.Storage, prefix string, log *zap.Logger) *Server {
	poster := ledger.NewPoster(s, prefix, log)
	return &Server{
		loans:   loan.NewService(s, poster, log),
		poster:  poster,
		storage: s,
		log:     log,
	}
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	r.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	r.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	r.HandleFunc("/loans/{id}/disburse", s.disburseHandler).Methods("POST")
	r.HandleFunc("/loans/{id}/schedule", s.getScheduleHandler).Methods("GET")
	r.HandleFunc("/loans/{id}/payments", s.applyPaymentHandler).Methods("POST")
	r.HandleFunc("/loans/{id}/penalties", s.recordPenaltyHandler).Methods("POST")
	r.HandleFunc("/loans/{id}/accruals", s.accrueInterestHandler).Methods("POST")
	r.HandleFunc("/loans/{id}/writeoff", s.writeOffHandler).Methods("POST")
	r.HandleFunc("/loans/{id}/suspense", s.listSuspenseHandler).Methods("GET")
	r.HandleFunc("/suspense/{id}/resolve", s.resolveSuspenseHandler).Methods("POST")
	r.HandleFunc("/accounts/{code}/balance", s.accountBalanceHandler).Methods("GET")
	r.HandleFunc("/accounts/{code}/records", s.accountRecordsHandler).Methods("GET")
	r.HandleFunc("/journals/{number}", s.getJournalHandler).Methods("GET")
	r.HandleFunc("/journals/{number}/reverse", s.reverseJournalHandler).Methods("POST")
	return r
}

// logRequests emits one structured line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerKey    string                    `json:"customer_key"`
		Principal      decimal.Decimal           `json:"principal"`
		InterestRate   decimal.Decimal           `json:"interest_rate"`
		TermMonths     int                       `json:"term_months"`
		InterestMethod models.InterestMethod     `json:"interest_method"`
		Frequency      models.RepaymentFrequency `json:"frequency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	acct, err := s.loans.CreateLoan(r.Context(), req.CustomerKey, req.Principal, req.InterestRate, req.TermMonths, req.InterestMethod, req.Frequency)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	acct, err := s.loans.GetLoan(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	accts, err := s.loans.ListLoans(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accts)
}

func (s *Server) disburseHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req struct {
		Date *time.Time `json:"date,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	when := time.Now()
	if req.Date != nil {
		when = *req.Date
	}

	acct, installments, err := s.loans.Disburse(r.Context(), id, when)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"loan":     acct,
		"schedule": installments,
	})
}

func (s *Server) getScheduleHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	installments, err := s.loans.GetSchedule(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, installments)
}

func (s *Server) applyPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req struct {
		Reference  string          `json:"reference"`
		Amount     decimal.Decimal `json:"amount"`
		ReceivedAt *time.Time      `json:"received_at,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Reference == "" {
		http.Error(w, "reference is required", http.StatusBadRequest)
		return
	}
	receivedAt := time.Now()
	if req.ReceivedAt != nil {
		receivedAt = *req.ReceivedAt
	}

	result, err := s.loans.ApplyPayment(r.Context(), req.Reference, id, req.Amount, receivedAt)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if result.AlreadyApplied {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

func (s *Server) recordPenaltyHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req struct {
		Sequence int             `json:"sequence"`
		Amount   decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	inst, err := s.loans.RecordPenalty(r.Context(), id, req.Sequence, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) accrueInterestHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Date   *time.Time      `json:"date,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	when := time.Now()
	if req.Date != nil {
		when = *req.Date
	}

	entry, err := s.loans.AccrueInterest(r.Context(), id, req.Amount, when)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) writeOffHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	acct, err := s.loans.WriteOff(r.Context(), id, time.Now())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) listSuspenseHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	result, err := s.loans.SuspenseForLoan(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) resolveSuspenseHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	susp, err := s.loans.ResolveSuspense(r.Context(), id, time.Now())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, susp)
}

func (s *Server) accountBalanceHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	asOf := time.Now()
	if v := r.URL.Query().Get("as_of"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "as_of must be RFC3339", http.StatusBadRequest)
			return
		}
		asOf = parsed
	}

	balance, err := s.poster.AccountBalance(r.Context(), code, asOf)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_code": code,
		"as_of":        asOf,
		"balance":      balance,
	})
}

func (s *Server) accountRecordsHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	records, err := s.poster.Records(r.Context(), code)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) getJournalHandler(w http.ResponseWriter, r *http.Request) {
	entry, err := s.poster.Entry(r.Context(), mux.Vars(r)["number"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) reverseJournalHandler(w http.ResponseWriter, r *http.Request) {
	reversal, err := s.poster.Reverse(r.Context(), mux.Vars(r)["number"], time.Now())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reversal)
}

// writeError maps domain errors to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrLoanNotFound),
		errors.Is(err, models.ErrInstallmentNotFound),
		errors.Is(err, models.ErrSuspenseNotFound),
		errors.Is(err, models.ErrJournalNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInvalidTerm),
		errors.Is(err, models.ErrInvalidPrincipal),
		errors.Is(err, models.ErrUnsupportedMethod),
		errors.Is(err, models.ErrUnknownFrequency):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, models.ErrLoanNotPending),
		errors.Is(err, models.ErrLoanNotActive),
		errors.Is(err, models.ErrJournalNotPosted),
		errors.Is(err, models.ErrNothingOutstanding),
		errors.Is(err, models.ErrConcurrentModification),
		errors.Is(err, models.ErrUnbalancedEntry):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		s.log.Error("internal error", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := applogger.New(cfg.Mode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	sqliteStore, err := store.NewSQLiteStore(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal("failed to initialize store", zap.Error(err))
	}
	defer sqliteStore.Close()

	server := NewServer(sqliteStore, cfg.JournalPrefix, log)

	// Periodic sweep flips past-due installments to OVERDUE.
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()

		for range ticker.C {
			if _, err := server.loans.MarkOverdue(context.Background(), time.Now()); err != nil {
				log.Error("overdue sweep failed", zap.Error(err))
			}
		}
	}()

	log.Info("server starting", zap.String("addr", cfg.ListenAddr))
	if err := http.ListenAndServe(cfg.ListenAddr, server.router()); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
