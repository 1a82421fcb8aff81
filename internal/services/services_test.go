package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"labloans/internal/authz"
	"labloans/internal/metrics"
	"labloans/internal/models"
	"labloans/internal/repositories"
	"labloans/internal/testutil"
)

type testEnv struct {
	db           *gorm.DB
	ledger       *InventoryLedger
	loans        *loanService
	reservations ReservationService
	catalog      CatalogService
	users        UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	m := metrics.New()

	materialRepo := repositories.NewMaterialRepository(db)
	roomRepo := repositories.NewRoomRepository(db)
	ledger := NewInventoryLedger(materialRepo, log, m)

	return &testEnv{
		db:           db,
		ledger:       ledger,
		loans:        NewLoanService(db, repositories.NewLoanRepository(db), materialRepo, ledger, log, m).(*loanService),
		reservations: NewReservationService(db, repositories.NewReservationRepository(db), roomRepo, log),
		catalog: NewCatalogService(db, materialRepo, roomRepo, repositories.NewSubjectRepository(db),
			repositories.NewPracticeReportRepository(db), ledger, log),
		users: NewUserService(db, repositories.NewUserRepository(db), log),
	}
}

func as(u *models.User) *authz.Caller {
	return authz.CallerFromUser(u)
}

// day returns midnight UTC offset days from today.
func day(offset int) *time.Time {
	t := truncateToDay(time.Now()).AddDate(0, 0, offset)
	return &t
}

func item(m *models.Material, qty int) LoanItemInput {
	return LoanItemInput{MaterialID: m.ID, Quantity: qty}
}

func (e *testEnv) createLoan(t *testing.T, student *models.User, items ...LoanItemInput) *models.Loan {
	t.Helper()
	loan, err := e.loans.CreateLoan(context.Background(), as(student), CreateLoanInput{
		Items:      items,
		PickupDate: day(1),
		ReturnDate: day(8),
	})
	require.NoError(t, err)
	return loan
}

func (e *testEnv) transition(t *testing.T, actor *models.User, loan *models.Loan, to models.LoanStatus) *models.Loan {
	t.Helper()
	updated, err := e.loans.TransitionLoan(context.Background(), as(actor), loan.ID, to, nil)
	require.NoError(t, err)
	return updated
}

func (e *testEnv) countRows(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Count(&n).Error)
	return n
}
