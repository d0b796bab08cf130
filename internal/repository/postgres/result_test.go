package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aegisawareness/phishsim/internal/domain"
	"github.com/aegisawareness/phishsim/internal/tracking"
	"github.com/google/uuid"
)

func TestMarkOpenedFirstWriteWins(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	repo := NewResultRepo(db)
	at := time.Now().UTC()
	meta := tracking.EventMeta{IPAddress: "198.51.100.7", UserAgent: "MailClient/1.0"}

	// First event: the conditional update matches one row.
	mock.ExpectExec(`(?s)UPDATE phishing_results\s+SET email_opened_at = \$2.*WHERE tracking_token = \$1 AND email_opened_at IS NULL`).
		WithArgs("tokA", at, meta.IPAddress, meta.UserAgent, "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	first, err := repo.MarkOpened(context.Background(), "tokA", at, meta)
	if err != nil {
		t.Fatalf("MarkOpened: %v", err)
	}
	if !first {
		t.Fatal("first open should report first=true")
	}

	// Replay: the timestamp is already set, zero rows match.
	mock.ExpectExec(`(?s)UPDATE phishing_results\s+SET email_opened_at = \$2.*IS NULL`).
		WithArgs("tokA", at, meta.IPAddress, meta.UserAgent, "").
		WillReturnResult(sqlmock.NewResult(0, 0))

	first, err = repo.MarkOpened(context.Background(), "tokA", at, meta)
	if err != nil {
		t.Fatalf("MarkOpened replay: %v", err)
	}
	if first {
		t.Fatal("replayed open must report first=false")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestMarkClickedLooksUpSettingsEvenWhenUnknown(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	repo := NewResultRepo(db)
	at := time.Now().UTC()

	// The update and the settings lookup both run for an unknown token.
	mock.ExpectExec(`UPDATE phishing_results\s+SET link_clicked_at = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT c\.settings\s+FROM phishing_results res`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"settings"}))

	out, err := repo.MarkClicked(context.Background(), "nope", at, tracking.EventMeta{})
	if err != nil {
		t.Fatalf("MarkClicked: %v", err)
	}
	if out.Found {
		t.Fatal("unknown token must not be Found")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestMarkClickedFirstReturnsSettings(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	repo := NewResultRepo(db)
	at := time.Now().UTC()

	mock.ExpectExec(`UPDATE phishing_results\s+SET link_clicked_at = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT c\.settings`).
		WithArgs("tokB").
		WillReturnRows(sqlmock.NewRows([]string{"settings"}).
			AddRow([]byte(`{"track_opens":true,"track_clicks":true,"training_url":"https://lms.test/c1","send_rate_per_hour":100}`)))

	out, err := repo.MarkClicked(context.Background(), "tokB", at, tracking.EventMeta{Location: "https://orig.test"})
	if err != nil {
		t.Fatalf("MarkClicked: %v", err)
	}
	if !out.Found || !out.First {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if out.Settings.TrainingURL != "https://lms.test/c1" {
		t.Fatalf("settings not decoded: %+v", out.Settings)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTransitionConditionalUpdate(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	repo := NewCampaignRepo(db)
	id := uuid.New()

	// Winner: row still in the expected source state.
	mock.ExpectExec(`UPDATE phishing_campaigns\s+SET status = \$3, updated_at = NOW\(\), started_at = NOW\(\)\s+WHERE id = \$1 AND status = \$2`).
		WithArgs(id, domain.CampaignStatusScheduled, domain.CampaignStatusRunning).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.Transition(context.Background(), id, domain.CampaignStatusScheduled, domain.CampaignStatusRunning)
	if err != nil || !ok {
		t.Fatalf("Transition = %v, %v; want true, nil", ok, err)
	}

	// Loser: the state moved concurrently, zero rows match.
	mock.ExpectExec(`UPDATE phishing_campaigns\s+SET status = \$3`).
		WithArgs(id, domain.CampaignStatusScheduled, domain.CampaignStatusRunning).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.Transition(context.Background(), id, domain.CampaignStatusScheduled, domain.CampaignStatusRunning)
	if err != nil || ok {
		t.Fatalf("Transition = %v, %v; want false, nil", ok, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestMarkSentOnlyOnce(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	repo := NewResultRepo(db)
	id := uuid.New()
	at := time.Now().UTC()

	mock.ExpectExec(`UPDATE phishing_results\s+SET email_sent_at = \$2\s+WHERE id = \$1 AND email_sent_at IS NULL`).
		WithArgs(id, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	first, err := repo.MarkSent(context.Background(), id, at)
	if err != nil || !first {
		t.Fatalf("MarkSent = %v, %v; want true, nil", first, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
