package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/gofrs/uuid/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/gatekeeper/internal/model"
)

func TestNotificationRepo_Deliver(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewNotificationRepo(db)

	n := model.Notification{
		RecipientID: uuid.Must(uuid.NewV4()),
		Title:       "Account muted",
		Body:        "You have been muted until permanent. Reason: spam",
		Category:    model.CategoryAnnouncement,
	}
	mock.ExpectExec(`INSERT INTO notifications \(id, recipient_id, title, body, category\)`).
		WithArgs(pgxmock.AnyArg(), n.RecipientID, n.Title, n.Body, n.Category).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, r.Deliver(context.Background(), n))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepo_Deliver_Error(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewNotificationRepo(db)

	mock.ExpectExec(`INSERT INTO notifications`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("fk violation"))

	require.Error(t, r.Deliver(context.Background(), model.Notification{}))
}
