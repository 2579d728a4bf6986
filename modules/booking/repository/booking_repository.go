package repository

import (
	"context"
	"database/sql"

	"github.com/SunnyC0d3/booking-system-sub009/core/database"
	"github.com/SunnyC0d3/booking-system-sub009/core/logger"
	"github.com/SunnyC0d3/booking-system-sub009/modules/booking/entity"

	"github.com/google/uuid"
)

const bookingColumns = `id, user_id, service_id, service_name, starts_at, ends_at, client_name, client_email,
	client_phone, location, reference, addons_description, status`

// BookingRepository reads bookings owned by the booking domain. The calendar
// engine never writes them.
type BookingRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error)
}

type bookingRepository struct {
	db database.IDatabase
}

func NewBookingRepository(db database.IDatabase) BookingRepository {
	return &bookingRepository{db: db}
}

func (r *bookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	var b entity.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if err := r.db.GetContext(ctx, &b, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		logger.Error("BookingRepository:GetByID:Error", "error", err, "id", id.String())
		return nil, err
	}
	return &b, nil
}
