package core

import (
	"context"
	"time"

	"blueprintcore/pkg/domain"
)

type stubClock struct{ t time.Time }

func (s stubClock) Now() time.Time { return s.t }

type captureLogger struct{ calls []string }

func (c *captureLogger) Debug(msg string, _ ...any) { c.calls = append(c.calls, "d:"+msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.calls = append(c.calls, "i:"+msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.calls = append(c.calls, "w:"+msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.calls = append(c.calls, "e:"+msg) }

func (c *captureLogger) count(prefix string) int {
	n := 0
	for _, call := range c.calls {
		if len(call) >= len(prefix) && call[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// fakePersistentStore satisfies domain.PersistentStore without holding data.
type fakePersistentStore struct{}

func (*fakePersistentStore) RunInTransaction(context.Context, func(domain.Transaction) error) (domain.Result, error) {
	return domain.Result{}, nil
}
func (*fakePersistentStore) View(context.Context, func(domain.TransactionView) error) error {
	return nil
}
func (*fakePersistentStore) GetResource(string) (domain.Resource, bool) {
	return domain.Resource{}, false
}
func (*fakePersistentStore) ListResources() []domain.Resource { return nil }
func (*fakePersistentStore) GetGenerator(string) (domain.Generator, bool) {
	return domain.Generator{}, false
}
func (*fakePersistentStore) ListGenerators() []domain.Generator       { return nil }
func (*fakePersistentStore) GetUpgrade(string) (domain.Upgrade, bool) { return domain.Upgrade{}, false }
func (*fakePersistentStore) ListUpgrades() []domain.Upgrade           { return nil }
func (*fakePersistentStore) GetTier(string) (domain.Tier, bool)       { return domain.Tier{}, false }
func (*fakePersistentStore) ListTiers() []domain.Tier                 { return nil }
func (*fakePersistentStore) Settings() domain.Settings                { return domain.DefaultSettings() }
func (*fakePersistentStore) Blueprint() domain.Blueprint              { return domain.Blueprint{} }
func (*fakePersistentStore) RulesEngine() *domain.RulesEngine         { return nil }
