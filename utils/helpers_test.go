package utils

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"stayflow/config"
	"stayflow/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, config.MigrateDB(db))
	return db
}

func newTestLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func seedSequence(t *testing.T, db *gorm.DB, triggerSource string, offsets []int) *models.SequenceDefinition {
	t.Helper()

	def := models.SequenceDefinition{
		Name:          fmt.Sprintf("%s-seq", triggerSource),
		TriggerSource: triggerSource,
		IsActive:      true,
	}
	for i, offset := range offsets {
		def.Steps = append(def.Steps, models.SequenceStep{
			Position:     i + 1,
			DayOffset:    offset,
			TemplateName: "day3-mistakes",
			Subject:      fmt.Sprintf("Step %d", i+1),
		})
	}
	require.NoError(t, db.Create(&def).Error)
	return &def
}

func seedContact(t *testing.T, db *gorm.DB, email string) *models.Contact {
	t.Helper()

	contact := models.Contact{
		Email:            email,
		Name:             "Ana",
		Status:           models.ContactStatusActive,
		Archetype:        models.ArchetypeEstratega,
		Source:           "test",
		UnsubscribeToken: NewUnsubscribeToken(),
	}
	require.NoError(t, db.Create(&contact).Error)
	return &contact
}

// fakeTransport records every accepted send and fails on demand, keyed by
// recipient address.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []OutboundEmail
	failWith map[string]error
	failOnce map[string]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		failWith: make(map[string]error),
		failOnce: make(map[string]error),
	}
}

func (f *fakeTransport) Send(_ context.Context, email OutboundEmail) (SendReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.failOnce[email.To]; ok {
		delete(f.failOnce, email.To)
		return SendReceipt{}, err
	}
	if err, ok := f.failWith[email.To]; ok {
		return SendReceipt{}, err
	}

	f.sent = append(f.sent, email)
	return SendReceipt{ProviderMessageID: fmt.Sprintf("msg-%d", len(f.sent))}, nil
}

func (f *fakeTransport) sentTo(addr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, email := range f.sent {
		if email.To == addr {
			count++
		}
	}
	return count
}

// newTestEngine wires a dispatcher with the given transport against the
// test database, using production defaults for limits.
func newTestEngine(db *gorm.DB, transport MailTransport) (*Dispatcher, *EnrollmentManager) {
	logger := newTestLogger()
	manager := NewEnrollmentManager(db, logger)
	personalizer := NewPersonalizer("https://stayflow.test")
	executor := NewSendExecutor(db, transport, personalizer, manager, logger, 5, 5*time.Second)
	dispatcher := NewDispatcher(db, executor, logger, 50, 1)
	return dispatcher, manager
}
