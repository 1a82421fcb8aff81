package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"labloans/internal/authz"
	"labloans/internal/logger"
	"labloans/internal/models"
	"labloans/internal/repositories"
)

type ReservationAction string

const (
	ReservationApprove ReservationAction = "approve"
	ReservationCancel  ReservationAction = "cancel"
)

type CreateReservationInput struct {
	RoomID    uuid.UUID
	StartTime *time.Time
	EndTime   *time.Time
	Reason    *string
	Program   *models.Program
}

type ReservationService interface {
	CreateReservation(ctx context.Context, caller *authz.Caller, in CreateReservationInput) (*models.Reservation, error)
	ListReservations(ctx context.Context, roomID *uuid.UUID) ([]models.Reservation, error)
	ReviewReservation(ctx context.Context, caller *authz.Caller, id uuid.UUID, action ReservationAction, cancelReason *string) (*models.Reservation, error)
}

type reservationService struct {
	db           *gorm.DB
	reservations repositories.ReservationRepository
	rooms        repositories.RoomRepository
	log          *logger.Logger
}

func NewReservationService(
	db *gorm.DB,
	reservations repositories.ReservationRepository,
	rooms repositories.RoomRepository,
	log *logger.Logger,
) ReservationService {
	return &reservationService{
		db:           db,
		reservations: reservations,
		rooms:        rooms,
		log:          log.With("service", "ReservationService"),
	}
}

// CreateReservation books a room as PENDING. Overlapping bookings for the
// same room are not detected.
func (s *reservationService) CreateReservation(ctx context.Context, caller *authz.Caller, in CreateReservationInput) (*models.Reservation, error) {
	if err := authz.Can(caller, authz.ActionReservationCreate); err != nil {
		return nil, err
	}
	if in.StartTime == nil || in.EndTime == nil {
		return nil, ErrDatesRequired
	}
	if !in.EndTime.After(*in.StartTime) {
		return nil, ErrInvalidTimeRange
	}

	db := s.db.WithContext(ctx)
	if _, err := s.rooms.GetByID(db, in.RoomID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownRoom
		}
		return nil, err
	}

	program := in.Program
	if program == nil {
		program = caller.Program
	}
	res := &models.Reservation{
		RoomID:      in.RoomID,
		RequestedBy: caller.ID,
		Program:     program,
		StartTime:   in.StartTime.UTC(),
		EndTime:     in.EndTime.UTC(),
		Status:      models.ReservationStatusPending,
		Reason:      nonEmpty(in.Reason),
	}
	if err := s.reservations.Create(db, res); err != nil {
		s.log.Error("CreateReservation: failed to create reservation", "room_id", in.RoomID, "error", err)
		return nil, err
	}
	s.log.Info("CreateReservation: reservation created", "reservation_id", res.ID, "room_id", in.RoomID, "requested_by", caller.ID)
	return res, nil
}

func (s *reservationService) ListReservations(ctx context.Context, roomID *uuid.UUID) ([]models.Reservation, error) {
	return s.reservations.List(s.db.WithContext(ctx), roomID)
}

// ReviewReservation approves a pending reservation or cancels a pending or
// approved one. Only admins and lab managers of the reservation's program
// may do either.
func (s *reservationService) ReviewReservation(ctx context.Context, caller *authz.Caller, id uuid.UUID, action ReservationAction, cancelReason *string) (*models.Reservation, error) {
	if action != ReservationApprove && action != ReservationCancel {
		return nil, ErrInvalidAction
	}

	var updated *models.Reservation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := s.reservations.GetByIDForUpdate(tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrReservationNotFound
			}
			return err
		}

		if err := authz.Authorize(caller, authz.ActionReservationReview, authz.Scope{Program: res.Program}); err != nil {
			s.log.Warn("ReviewReservation: denied", "reservation_id", id, "caller_id", callerID(caller), "reason", err.Error())
			return err
		}

		fields := map[string]interface{}{"approved_by": caller.ID}
		switch action {
		case ReservationApprove:
			if res.Status != models.ReservationStatusPending {
				return ErrInvalidReservationTransition
			}
			fields["status"] = models.ReservationStatusApproved
		case ReservationCancel:
			if res.Status == models.ReservationStatusCancelled {
				return ErrInvalidReservationTransition
			}
			reason := ""
			if cancelReason != nil {
				reason = *cancelReason
			}
			fields["status"] = models.ReservationStatusCancelled
			fields["cancel_reason"] = reason
		}

		if err := s.reservations.UpdateFields(tx, id, fields); err != nil {
			s.log.Error("ReviewReservation: failed to update reservation", "reservation_id", id, "error", err)
			return err
		}
		reloaded, err := s.reservations.GetByID(tx, id)
		if err != nil {
			return err
		}
		updated = reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("ReviewReservation: reservation reviewed", "reservation_id", id, "action", action, "actor_id", caller.ID)
	return updated, nil
}
