package services

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labloans/internal/authz"
	"labloans/internal/models"
	"labloans/internal/testutil"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.LoanStatus
		want     bool
	}{
		{models.LoanStatusPending, models.LoanStatusApproved, true},
		{models.LoanStatusPending, models.LoanStatusRejected, true},
		{models.LoanStatusPending, models.LoanStatusPickedUp, false},
		{models.LoanStatusPending, models.LoanStatusReturned, false},
		{models.LoanStatusApproved, models.LoanStatusPickedUp, true},
		{models.LoanStatusApproved, models.LoanStatusPending, false},
		{models.LoanStatusApproved, models.LoanStatusRejected, false},
		{models.LoanStatusPickedUp, models.LoanStatusReturned, true},
		{models.LoanStatusPickedUp, models.LoanStatusOverdue, true},
		{models.LoanStatusOverdue, models.LoanStatusReturned, true},
		{models.LoanStatusOverdue, models.LoanStatusPickedUp, false},
		{models.LoanStatusReturned, models.LoanStatusPickedUp, false},
		{models.LoanStatusRejected, models.LoanStatusApproved, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
	assert.True(t, IsTerminal(models.LoanStatusReturned))
	assert.True(t, IsTerminal(models.LoanStatusRejected))
	assert.False(t, IsTerminal(models.LoanStatusOverdue))
}

func TestLoanLifecycle_RoundTripRestoresStock(t *testing.T) {
	e := newTestEnv(t)
	student := testutil.CreateUser(t, e.db, models.UserRoleStudent, testutil.WithProgram(models.ProgramMecatronica))
	admin := testutil.CreateUser(t, e.db, models.UserRoleAdmin)
	m := testutil.CreateMaterial(t, e.db, "Multímetro", 5, testutil.LabPtr(models.LabElectronics))

	loan := e.createLoan(t, student, item(m, 3))
	assert.Equal(t, models.LoanStatusPending, loan.Status)
	require.Len(t, loan.Items, 1)
	assert.Equal(t, 3, loan.Items[0].Quantity)
	require.NotNil(t, loan.Program)
	assert.Equal(t, models.ProgramMecatronica, *loan.Program)
	assert.Equal(t, 5, testutil.Material(t, e.db, m.ID).AvailableQuantity, "creation must not touch stock")

	approved := e.transition(t, admin, loan, models.LoanStatusApproved)
	assert.Equal(t, models.LoanStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, admin.ID, *approved.ApprovedBy)
	assert.Equal(t, 5, testutil.Material(t, e.db, m.ID).AvailableQuantity)

	picked := e.transition(t, admin, loan, models.LoanStatusPickedUp)
	assert.NotNil(t, picked.ActualPickupDate)
	assert.Equal(t, 2, testutil.Material(t, e.db, m.ID).AvailableQuantity)

	returned := e.transition(t, admin, loan, models.LoanStatusReturned)
	assert.NotNil(t, returned.ActualReturnDate)
	after := testutil.Material(t, e.db, m.ID)
	assert.Equal(t, 5, after.AvailableQuantity)
	assert.Equal(t, 5, after.TotalQuantity)
}

func TestCreateLoan_RejectsMoreThanAvailable(t *testing.T) {
	e := newTestEnv(t)
	student := testutil.CreateUser(t, e.db, models.UserRoleStudent)
	m := testutil.CreateMaterial(t, e.db, "Osciloscopio", 5, nil)

	_, err := e.loans.CreateLoan(context.Background(), as(student), CreateLoanInput{
		Items:      []LoanItemInput{item(m, 10)},
		PickupDate: day(1),
		ReturnDate: day(3),
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "Osciloscopio")

	assert.Zero(t, e.countRows(t, &models.Loan{}))
	assert.Zero(t, e.countRows(t, &models.LoanItem{}))
	assert.Equal(t, 5, testutil.Material(t, e.db, m.ID).AvailableQuantity)
}

func TestTransition_PickupRechecksStock(t *testing.T) {
	e := newTestEnv(t)
	s1 := testutil.CreateUser(t, e.db, models.UserRoleStudent)
	s2 := testutil.CreateUser(t, e.db, models.UserRoleStudent)
	admin := testutil.CreateUser(t, e.db, models.UserRoleAdmin)
	m := testutil.CreateMaterial(t, e.db, "Protoboard", 5, nil)

	// Both requests fit on their own, so both are accepted while pending.
	first := e.createLoan(t, s1, item(m, 3))
	second := e.createLoan(t, s2, item(m, 3))
	e.transition(t, admin, first, models.LoanStatusApproved)
	e.transition(t, admin, second, models.LoanStatusApproved)

	e.transition(t, admin, first, models.LoanStatusPickedUp)

	_, err := e.loans.TransitionLoan(context.Background(), as(admin), second.ID, models.LoanStatusPickedUp, nil)
	require.ErrorIs(t, err, ErrInsufficientStock)

	reloaded, err := e.loans.GetLoan(context.Background(), as(admin), second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusApproved, reloaded.Status)
	assert.Nil(t, reloaded.ActualPickupDate)
	assert.Equal(t, 2, testutil.Material(t, e.db, m.ID).AvailableQuantity)
}

func TestTransition_PickupRollsBackEveryItem(t *testing.T) {
	e := newTestEnv(t)
	s1 := testutil.CreateUser(t, e.db, models.UserRoleStudent)
	s2 := testutil.CreateUser(t, e.db, models.UserRoleStudent)
	admin := testutil.CreateUser(t, e.db, models.UserRoleAdmin)
	plenty := testutil.CreateMaterial(t, e.db, "Cables", 10, nil)
	scarce := testutil.CreateMaterial(t, e.db, "Arduino", 1, nil)

	blocker := e.createLoan(t, s1, item(scarce, 1))
	loan := e.createLoan(t, s2, item(plenty, 4), item(scarce, 1))
	for _, l := range []*models.Loan{blocker, loan} {
		e.transition(t, admin, l, models.LoanStatusApproved)
	}
	e.transition(t, admin, blocker, models.LoanStatusPickedUp)

	_, err := e.loans.TransitionLoan(context.Background(), as(admin), loan.ID, models.LoanStatusPickedUp, nil)
	require.ErrorIs(t, err, ErrInsufficientStock)

	assert.Equal(t, 10, testutil.Material(t, e.db, plenty.ID).AvailableQuantity)
	assert.Equal(t, 0, testutil.Material(t, e.db, scarce.ID).AvailableQuantity)
}

func TestTransition_InvalidTransition(t *testing.T) {
	e := newTestEnv(t)
	student := testutil.CreateUser(t, e.db, models.UserRoleStudent)
	admin := testutil.CreateUser(t, e.db, models.UserRoleAdmin)
	m := testutil.CreateMaterial(t, e.db, "Fuente", 2, nil)
	loan := e.createLoan(t, student, item(m, 1))

	_, err := e.loans.TransitionLoan(context.Background(), as(admin), loan.ID, models.LoanStatusReturned, nil)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, err, ErrValidation)

	var te *InvalidTransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, models.LoanStatusPending, te.From)
	assert.Equal(t, models.LoanStatusReturned, te.To)
	assert.Equal(t, 2, testutil.Material(t, e.db, m.ID).AvailableQuantity)

	e.transition(t, admin, loan, models.LoanStatusRejected)
	_, err = e.loans.TransitionLoan(context.Background(), as(admin), loan.ID, models.LoanStatusApproved, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransition_StatusInputValidation(t *testing.T) {
	e := newTestEnv(t)
	student := testutil.CreateUser(t, e.db, models.UserRoleStudent)
	admin := testutil.CreateUser(t, e.db, models.UserRoleAdmin)
	m := testutil.CreateMaterial(t, e.db, "Pinzas", 2, nil)
	loan := e.createLoan(t, student, item(m, 1))

	_, err := e.loans.TransitionLoan(context.Background(), as(admin), loan.ID, "LOST", nil)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	notes := "revisado"
	updated, err := e.loans.TransitionLoan(context.Background(), as(admin), loan.ID, "approved", &notes)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusApproved, updated.Status)
	require.NotNil(t, updated.AdminNotes)
	assert.Equal(t, "revisado", *updated.AdminNotes)

	updated, err = e.loans.TransitionLoan(context.Background(), as(admin), loan.ID, models.LoanStatusPickedUp, nil)
	require.NoError(t, err)
	require.NotNil(t, updated.AdminNotes, "notes survive a transition without notes")
	assert.Equal(t, "revisado", *updated.AdminNotes)

	empty := ""
	updated, err = e.loans.TransitionLoan(context.Background(), as(admin), loan.ID, models.LoanStatusReturned, &empty)
	require.NoError(t, err)
	require.NotNil(t, updated.AdminNotes)
	assert.Equal(t, "revisado", *updated.AdminNotes)

	_, err = e.loans.TransitionLoan(context.Background(), as(admin), uuid.New(), models.LoanStatusApproved, nil)
	assert.ErrorIs(t, err, ErrLoanNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransition_LabManagerScope(t *testing.T) {
	e := newTestEnv(t)
	student := testutil.CreateUser(t, e.db, models.UserRoleStudent)
	elect := testutil.CreateUser(t, e.db, models.UserRoleLabManager, testutil.WithAssignedLab(models.LabElectronics))
	ing := testutil.CreateUser(t, e.db, models.UserRoleLabManager, testutil.WithAssignedLab(models.LabEngineering))
	unassigned := testutil.CreateUser(t, e.db, models.UserRoleLabManager)
	m := testutil.CreateMaterial(t, e.db, "Torno", 2, testutil.LabPtr(models.LabEngineering))

	loan := e.createLoan(t, student, item(m, 1))

	_, err := e.loans.TransitionLoan(context.Background(), as(elect), loan.ID, models.LoanStatusApproved, nil)
	require.ErrorIs(t, err, authz.ErrForbiddenScope)
	assert.Contains(t, err.Error(), "lab-scope mismatch")

	reloaded, err := e.loans.GetLoan(context.Background(), as(ing), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusPending, reloaded.Status)

	e.transition(t, ing, loan, models.LoanStatusApproved)
	e.transition(t, unassigned, loan, models.LoanStatusPickedUp)
	assert.Equal(t, 1, testutil.Material(t, e.db, m.ID).AvailableQuantity)

	_, err = e.loans.TransitionLoan(context.Background(), as(student), loan.ID, models.LoanStatusReturned, nil)
	assert.ErrorIs(t, err, authz.ErrForbiddenRole)
}

func TestTransition_OverdueThenReturned(t *testing.T) {
	e := newTestEnv(t)
	student := testutil.CreateUser(t, e.db, models.UserRoleStudent)
	admin := testutil.CreateUser(t, e.db, models.UserRoleAdmin)
	m := testutil.CreateMaterial(t, e.db, "Soldador", 3, nil)

	loan := e.createLoan(t, student, item(m, 2))
	for _, st := range []models.LoanStatus{models.LoanStatusApproved, models.LoanStatusPickedUp, models.LoanStatusOverdue} {
		e.transition(t, admin, loan, st)
	}
	assert.Equal(t, 1, testutil.Material(t, e.db, m.ID).AvailableQuantity)

	returned := e.transition(t, admin, loan, models.LoanStatusReturned)
	assert.Equal(t, models.LoanStatusReturned, returned.Status)
	assert.Equal(t, 3, testutil.Material(t, e.db, m.ID).AvailableQuantity)
}

func TestTransition_ConcurrentPickupsNeverOversell(t *testing.T) {
	e := newTestEnv(t)
	admin := testutil.CreateUser(t, e.db, models.UserRoleAdmin)
	m := testutil.CreateMaterial(t, e.db, "Raspberry Pi", 5, nil)

	var loans []*models.Loan
	for i := 0; i < 2; i++ {
		student := testutil.CreateUser(t, e.db, models.UserRoleStudent)
		l := e.createLoan(t, student, item(m, 3))
		e.transition(t, admin, l, models.LoanStatusApproved)
		loans = append(loans, l)
	}

	errs := make([]error, len(loans))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, l := range loans {
		wg.Add(1)
		go func(idx int, id uuid.UUID) {
			defer wg.Done()
			<-start
			_, errs[idx] = e.loans.TransitionLoan(context.Background(), as(admin), id, models.LoanStatusPickedUp, nil)
		}(i, l.ID)
	}
	close(start)
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)

	after := testutil.Material(t, e.db, m.ID)
	assert.Equal(t, 2, after.AvailableQuantity)
	assert.GreaterOrEqual(t, after.AvailableQuantity, 0)
}

func TestCreateLoan_Validation(t *testing.T) {
	e := newTestEnv(t)
	student := testutil.CreateUser(t, e.db, models.UserRoleStudent)
	professor := testutil.CreateUser(t, e.db, models.UserRoleProfessor)
	m := testutil.CreateMaterial(t, e.db, "Calibrador", 4, nil)

	tests := []struct {
		name    string
		caller  *authz.Caller
		in      CreateLoanInput
		wantErr error
	}{
		{"no items", as(student), CreateLoanInput{PickupDate: day(1), ReturnDate: day(2)}, ErrNoItems},
		{"zero quantity", as(student), CreateLoanInput{Items: []LoanItemInput{item(m, 0)}, PickupDate: day(1), ReturnDate: day(2)}, ErrInvalidQuantity},
		{"missing dates", as(student), CreateLoanInput{Items: []LoanItemInput{item(m, 1)}}, ErrDatesRequired},
		{"return before pickup", as(student), CreateLoanInput{Items: []LoanItemInput{item(m, 1)}, PickupDate: day(3), ReturnDate: day(1)}, ErrInvalidDateRange},
		{"same day", as(student), CreateLoanInput{Items: []LoanItemInput{item(m, 1)}, PickupDate: day(2), ReturnDate: day(2)}, ErrInvalidDateRange},
		{"unknown material", as(student), CreateLoanInput{Items: []LoanItemInput{{MaterialID: uuid.New(), Quantity: 1}}, PickupDate: day(1), ReturnDate: day(2)}, ErrUnknownMaterial},
		{"not a student", as(professor), CreateLoanInput{Items: []LoanItemInput{item(m, 1)}, PickupDate: day(1), ReturnDate: day(2)}, authz.ErrForbiddenRole},
		{"anonymous", nil, CreateLoanInput{Items: []LoanItemInput{item(m, 1)}, PickupDate: day(1), ReturnDate: day(2)}, authz.ErrUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.loans.CreateLoan(context.Background(), tt.caller, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Zero(t, e.countRows(t, &models.Loan{}))
	assert.Zero(t, e.countRows(t, &models.LoanItem{}))
}

func TestCreateLoan_MergesRepeatedMaterials(t *testing.T) {
	e := newTestEnv(t)
	student := testutil.CreateUser(t, e.db, models.UserRoleStudent)
	a := testutil.CreateMaterial(t, e.db, "Resistencias", 10, nil)
	b := testutil.CreateMaterial(t, e.db, "Capacitores", 10, nil)

	loan := e.createLoan(t, student, item(a, 1), item(b, 2), item(a, 2))
	require.Len(t, loan.Items, 2)
	assert.Equal(t, a.ID, loan.Items[0].MaterialID)
	assert.Equal(t, 3, loan.Items[0].Quantity)
	assert.Equal(t, b.ID, loan.Items[1].MaterialID)
	require.NotNil(t, loan.Items[0].Material)
	assert.Equal(t, "Resistencias", loan.Items[0].Material.Name)

	huge := math.MaxInt/2 + 1
	_, err := e.loans.CreateLoan(context.Background(), as(student), CreateLoanInput{
		Items:      []LoanItemInput{item(a, huge), item(a, huge)},
		PickupDate: day(1),
		ReturnDate: day(8),
	})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, int64(1), e.countRows(t, &models.Loan{}))
}

func TestLoanQueries_Visibility(t *testing.T) {
	e := newTestEnv(t)
	alice := testutil.CreateUser(t, e.db, models.UserRoleStudent)
	bob := testutil.CreateUser(t, e.db, models.UserRoleStudent)
	manager := testutil.CreateUser(t, e.db, models.UserRoleLabManager)
	professor := testutil.CreateUser(t, e.db, models.UserRoleProfessor)
	m := testutil.CreateMaterial(t, e.db, "Taladro", 5, nil)

	aliceLoan := e.createLoan(t, alice, item(m, 1))
	e.createLoan(t, bob, item(m, 1))

	own, err := e.loans.ListLoans(context.Background(), as(alice), nil)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, aliceLoan.ID, own[0].ID)

	all, err := e.loans.ListLoans(context.Background(), as(manager), nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	approved := models.LoanStatusApproved
	none, err := e.loans.ListLoans(context.Background(), as(manager), &approved)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = e.loans.ListLoans(context.Background(), as(professor), nil)
	assert.ErrorIs(t, err, authz.ErrForbiddenRole)

	_, err = e.loans.GetLoan(context.Background(), as(bob), aliceLoan.ID)
	assert.ErrorIs(t, err, authz.ErrForbiddenRole)

	got, err := e.loans.GetLoan(context.Background(), as(alice), aliceLoan.ID)
	require.NoError(t, err)
	assert.Equal(t, aliceLoan.ID, got.ID)
}

func TestListOverdueLoans(t *testing.T) {
	e := newTestEnv(t)
	student := testutil.CreateUser(t, e.db, models.UserRoleStudent)
	admin := testutil.CreateUser(t, e.db, models.UserRoleAdmin)
	m := testutil.CreateMaterial(t, e.db, "Cautín", 5, nil)

	late, err := e.loans.CreateLoan(context.Background(), as(student), CreateLoanInput{
		Items:      []LoanItemInput{item(m, 1)},
		PickupDate: day(-10),
		ReturnDate: day(-3),
	})
	require.NoError(t, err)
	onTime := e.createLoan(t, student, item(m, 1))
	for _, l := range []*models.Loan{late, onTime} {
		e.transition(t, admin, l, models.LoanStatusApproved)
		e.transition(t, admin, l, models.LoanStatusPickedUp)
	}

	overdue, err := e.loans.ListOverdueLoans(context.Background(), as(admin))
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, late.ID, overdue[0].ID)
	assert.Equal(t, models.LoanStatusPickedUp, overdue[0].Status, "listing must not change status")

	_, err = e.loans.ListOverdueLoans(context.Background(), as(student))
	assert.ErrorIs(t, err, authz.ErrForbiddenRole)
}
