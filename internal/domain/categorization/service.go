package categorization

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/repository"
	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/sniffer"
	"github.com/FACorreiaa/statement-reconciler/pkg/metrics"
)

// ManualRule marks suggestions confirmed by a person.
const ManualRule = "manual"

var (
	ErrAccountRequired = errors.New("category account required")
	ErrNoTransactions  = errors.New("no transaction store configured")
)

// TransactionStore is the slice of the transaction repository categorization writes to.
type TransactionStore interface {
	GetTransaction(ctx context.Context, id uuid.UUID) (*repository.BankTransaction, error)
	UpdateSuggestion(ctx context.Context, id uuid.UUID, s repository.Suggestion) (*repository.BankTransaction, error)
}

// Result is the categorization of one description. An unmatched result
// carries no hints.
type Result struct {
	Matched      bool
	Rule         string
	Account      string
	Counterparty string
	Tax          string
	PaymentMode  string
	Confidence   float64
}

// Suggestion converts the result into the fields stored on a transaction.
func (r Result) Suggestion() repository.Suggestion {
	return repository.Suggestion{
		Account:      r.Account,
		Counterparty: r.Counterparty,
		Tax:          r.Tax,
		PaymentMode:  r.PaymentMode,
		Confidence:   r.Confidence,
		Rule:         r.Rule,
	}
}

// Service owns the rule engine, the counterparty index and the chart of
// accounts. Rules are loaded at construction and on Reload.
type Service struct {
	engine    *Engine
	index     *SearchIndex
	store     Store
	txns      TransactionStore
	rulesFile string
	static    []Rule
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer

	suggestLimit     int
	suggestThreshold float64

	mu             sync.RWMutex
	counterparties map[string]Counterparty
	accounts       map[string]string
}

// Option configures a Service.
type Option func(*Service)

func WithStore(store Store) Option { return func(s *Service) { s.store = store } }

func WithTransactions(txns TransactionStore) Option { return func(s *Service) { s.txns = txns } }

func WithRulesFile(path string) Option { return func(s *Service) { s.rulesFile = path } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithSearchIndex(idx *SearchIndex) Option { return func(s *Service) { s.index = idx } }

// WithSuggestions sets the counterparty suggestion limit and similarity threshold (percent).
func WithSuggestions(limit int, threshold float64) Option {
	return func(s *Service) {
		s.suggestLimit = limit
		s.suggestThreshold = threshold
	}
}

// NewService builds the engine from rules plus any rules file and store
// configured through opts.
func NewService(ctx context.Context, logger *slog.Logger, rules []Rule, opts ...Option) (*Service, error) {
	s := &Service{
		engine:           NewEngine(nil),
		static:           rules,
		logger:           logger,
		tracer:           otel.Tracer("statement-reconciler/categorization"),
		suggestLimit:     DefaultSuggestionLimit,
		suggestThreshold: DefaultSuggestionThreshold,
		counterparties:   make(map[string]Counterparty),
		accounts:         make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.index == nil {
		idx, err := NewSearchIndex("")
		if err != nil {
			return nil, err
		}
		s.index = idx
	}

	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload rebuilds the engine from the static rules, the rules file and the
// store, and refreshes counterparties and accounts.
func (s *Service) Reload(ctx context.Context) error {
	rules := append([]Rule(nil), s.static...)

	if s.rulesFile != "" {
		fileRules, err := LoadRulesFile(s.rulesFile)
		if err != nil {
			return err
		}
		rules = append(rules, fileRules...)
	}

	var (
		cps      []Counterparty
		accounts []Account
	)
	if s.store != nil {
		dbRules, err := s.store.ListRules(ctx)
		if err != nil {
			return fmt.Errorf("failed to load rules: %w", err)
		}
		rules = append(rules, dbRules...)

		if cps, err = s.store.ListCounterparties(ctx); err != nil {
			return fmt.Errorf("failed to load counterparties: %w", err)
		}
		if accounts, err = s.store.ListAccounts(ctx); err != nil {
			return fmt.Errorf("failed to load accounts: %w", err)
		}
	}

	s.engine.Build(rules)

	s.mu.Lock()
	if s.store != nil {
		s.counterparties = make(map[string]Counterparty, len(cps))
		for _, c := range cps {
			s.counterparties[c.Name] = c
		}
		s.accounts = make(map[string]string, len(accounts))
		for _, a := range accounts {
			s.accounts[sniffer.Normalize(a.Name)] = a.Name
		}
	}
	indexed := make([]Counterparty, 0, len(s.counterparties))
	for _, c := range s.counterparties {
		indexed = append(indexed, c)
	}
	s.mu.Unlock()

	if err := s.index.Replace(indexed); err != nil {
		return err
	}

	s.logger.Info("categorization rules loaded",
		slog.Int("rules", len(s.engine.Rules())),
		slog.Int("patterns", s.engine.PatternCount()),
		slog.Int("counterparties", len(indexed)),
		slog.Int("accounts", len(accounts)))
	return nil
}

// Engine exposes the rule engine.
func (s *Service) Engine() *Engine {
	return s.engine
}

// Categorize runs the rules against one description.
func (s *Service) Categorize(description string) Result {
	return s.resolve(s.engine.Match(description))
}

// CategorizeBatch categorizes descriptions under a single span.
func (s *Service) CategorizeBatch(ctx context.Context, descriptions []string) []Result {
	_, span := s.tracer.Start(ctx, "categorization.CategorizeBatch",
		trace.WithAttributes(attribute.Int("descriptions", len(descriptions))))
	defer span.End()

	matches := s.engine.MatchBatch(descriptions)
	results := make([]Result, len(matches))
	matched := 0
	for i, m := range matches {
		results[i] = s.resolve(m)
		if results[i].Matched {
			matched++
			s.metrics.CategorizeOutcome("matched")
		} else {
			s.metrics.CategorizeOutcome("unmatched")
		}
	}
	span.SetAttributes(attribute.Int("matched", matched))
	return results
}

func (s *Service) resolve(m *Match) Result {
	if m == nil {
		return Result{}
	}
	res := Result{
		Matched:      true,
		Rule:         m.Rule.Name,
		Account:      s.ResolveAccount(m.Rule.Account),
		Counterparty: m.Rule.Counterparty,
		Tax:          m.Rule.Tax,
		PaymentMode:  m.Rule.PaymentMode,
		Confidence:   m.Confidence,
	}
	if res.Account == "" && res.Counterparty != "" {
		s.mu.RLock()
		if c, ok := s.counterparties[res.Counterparty]; ok {
			res.Account = s.resolveLocked(c.DefaultAccount)
		}
		s.mu.RUnlock()
	}
	return res
}

// ResolveAccount maps a human-friendly account name onto the chart of
// accounts. Unknown names are returned unchanged.
func (s *Service) ResolveAccount(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked(name)
}

func (s *Service) resolveLocked(name string) string {
	if name == "" {
		return ""
	}
	if canonical, ok := s.accounts[sniffer.Normalize(name)]; ok {
		return canonical
	}
	return name
}

// CounterpartyNames returns every known counterparty name.
func (s *Service) CounterpartyNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.counterparties))
	for name := range s.counterparties {
		names = append(names, name)
	}
	return names
}

// SuggestForDescription ranks known counterparties against a description.
func (s *Service) SuggestForDescription(description string) []CounterpartySuggestion {
	return SuggestCounterparties(description, s.CounterpartyNames(), s.suggestLimit, s.suggestThreshold)
}

// SuggestCounterparties ranks known counterparties against a stored transaction.
func (s *Service) SuggestCounterparties(ctx context.Context, txID uuid.UUID) ([]CounterpartySuggestion, error) {
	if s.txns == nil {
		return nil, ErrNoTransactions
	}
	t, err := s.txns.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	return s.SuggestForDescription(t.Description), nil
}

// SearchCounterparties queries the counterparty index.
func (s *Service) SearchCounterparties(query string, limit int) ([]SearchResult, error) {
	return s.index.Search(query, limit)
}

// ConfirmCategory records a person's account and counterparty choice.
func (s *Service) ConfirmCategory(ctx context.Context, txID uuid.UUID, account, counterparty string) (*repository.BankTransaction, error) {
	if s.txns == nil {
		return nil, ErrNoTransactions
	}
	if account == "" {
		return nil, ErrAccountRequired
	}

	t, err := s.txns.UpdateSuggestion(ctx, txID, repository.Suggestion{
		Account:      s.ResolveAccount(account),
		Counterparty: counterparty,
		Confidence:   100,
		Rule:         ManualRule,
		Confirmed:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to confirm category: %w", err)
	}

	s.metrics.CategorizeOutcome("confirmed")
	s.logger.Info("category confirmed",
		slog.String("transaction_id", txID.String()),
		slog.String("account", t.SuggestedAccount),
		slog.String("counterparty", counterparty))
	return t, nil
}

// Recategorize reruns the rules on a stored, unconfirmed transaction.
func (s *Service) Recategorize(ctx context.Context, txID uuid.UUID) (*repository.BankTransaction, error) {
	if s.txns == nil {
		return nil, ErrNoTransactions
	}
	t, err := s.txns.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if t.CategoryConfirmed {
		return t, nil
	}
	return s.txns.UpdateSuggestion(ctx, txID, s.Categorize(t.Description).Suggestion())
}

// AddRule stores a rule and rebuilds the engine.
func (s *Service) AddRule(ctx context.Context, rule *Rule) error {
	if s.store == nil {
		return errors.New("no rule store configured")
	}
	if err := s.store.CreateRule(ctx, rule); err != nil {
		return err
	}
	return s.Reload(ctx)
}

// ImportCounterparties loads a name,kind,default_account CSV into the store
// and the index. It returns the number of rows loaded.
func (s *Service) ImportCounterparties(ctx context.Context, r io.Reader) (int, error) {
	var rows []*Counterparty
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return 0, fmt.Errorf("failed to parse counterparties: %w", err)
	}

	loaded := 0
	for _, c := range rows {
		if c.Name == "" {
			continue
		}
		if s.store != nil {
			if err := s.store.UpsertCounterparty(ctx, c); err != nil {
				return loaded, err
			}
		}
		if err := s.index.Index(*c); err != nil {
			return loaded, fmt.Errorf("failed to index counterparty: %w", err)
		}
		s.mu.Lock()
		s.counterparties[c.Name] = *c
		s.mu.Unlock()
		loaded++
	}

	s.logger.Info("counterparties imported", slog.Int("count", loaded))
	return loaded, nil
}

// Close releases the search index.
func (s *Service) Close() error {
	return s.index.Close()
}
