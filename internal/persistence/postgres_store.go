package persistence

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/lib/pq"

	"github.com/example/ride-pool-dispatch/internal/models"
)

// PostgresStore implements Store against a Postgres database via
// database/sql and the lib/pq driver.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens and pings a Postgres connection.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) InsertPassenger(ctx context.Context, pax models.Passenger) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO passengers(
			id, user_id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
			luggage_count, seats_required, max_detour_minutes, state,
			pool_id, base_fare, final_fare, surge_multiplier, requested_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		pax.ID, pax.UserID, pax.Pickup.Lat, pax.Pickup.Lng, pax.Dropoff.Lat, pax.Dropoff.Lng,
		pax.LuggageCount, pax.SeatsRequired, pax.MaxDetourMinutes, pax.State,
		pax.PoolID, pax.BaseFare, pax.FinalFare, pax.SurgeMultiplier, pax.RequestedAt,
	)
	return err
}

func (p *PostgresStore) GetPassenger(ctx context.Context, id string) (models.Passenger, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
			luggage_count, seats_required, max_detour_minutes, state,
			pool_id, base_fare, final_fare, surge_multiplier,
			requested_at, matched_at, completed_at, cancelled_at, cancellation_reason
		FROM passengers WHERE id = $1`, id)
	return scanPassenger(row)
}

func (p *PostgresStore) UpdatePassengerState(ctx context.Context, pax models.Passenger) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE passengers SET state=$1, pool_id=$2, final_fare=$3, surge_multiplier=$4,
			matched_at=$5, completed_at=$6, cancelled_at=$7, cancellation_reason=$8
		WHERE id=$9`,
		pax.State, pax.PoolID, pax.FinalFare, pax.SurgeMultiplier,
		pax.MatchedAt, pax.CompletedAt, pax.CancelledAt, pax.CancellationReason, pax.ID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (p *PostgresStore) QueryPendingPassengers(ctx context.Context, limit int) ([]models.Passenger, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
			luggage_count, seats_required, max_detour_minutes, state,
			pool_id, base_fare, final_fare, surge_multiplier,
			requested_at, matched_at, completed_at, cancelled_at, cancellation_reason
		FROM passengers WHERE state = $1 ORDER BY requested_at ASC LIMIT $2`,
		models.PassengerPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPassengers(rows)
}

func (p *PostgresStore) QueryPassengersByUser(ctx context.Context, userID string, state *models.PassengerState) ([]models.Passenger, error) {
	var rows *sql.Rows
	var err error
	if state != nil {
		rows, err = p.db.QueryContext(ctx, `
			SELECT id, user_id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
				luggage_count, seats_required, max_detour_minutes, state,
				pool_id, base_fare, final_fare, surge_multiplier,
				requested_at, matched_at, completed_at, cancelled_at, cancellation_reason
			FROM passengers WHERE user_id = $1 AND state = $2 ORDER BY requested_at ASC`, userID, *state)
	} else {
		rows, err = p.db.QueryContext(ctx, `
			SELECT id, user_id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
				luggage_count, seats_required, max_detour_minutes, state,
				pool_id, base_fare, final_fare, surge_multiplier,
				requested_at, matched_at, completed_at, cancelled_at, cancellation_reason
			FROM passengers WHERE user_id = $1 ORDER BY requested_at ASC`, userID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPassengers(rows)
}

func (p *PostgresStore) InsertPool(ctx context.Context, pool models.Pool) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO pools(
			id, driver_id, vehicle_class, max_seats, max_luggage,
			current_seats, current_luggage, state, total_distance_km,
			created_at, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,0)`,
		pool.ID, pool.DriverID, pool.VehicleClass, pool.MaxCapacity.Seats, pool.MaxCapacity.Luggage,
		pool.CurrentLoad.Seats, pool.CurrentLoad.Luggage, pool.State, pool.TotalDistanceKm,
		pool.CreatedAt,
	)
	return err
}

func (p *PostgresStore) GetPool(ctx context.Context, id string) (models.Pool, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, driver_id, vehicle_class, max_seats, max_luggage,
			current_seats, current_luggage, state, total_distance_km,
			created_at, matched_at, completed_at, version
		FROM pools WHERE id = $1`, id)
	return scanPool(row)
}

// UpdatePoolUnderLease performs an unconditional update plus version
// bump; the caller must already hold the pool's lease (spec §4.5/§6).
func (p *PostgresStore) UpdatePoolUnderLease(ctx context.Context, pool models.Pool) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE pools SET driver_id=$1, state=$2, current_seats=$3, current_luggage=$4,
			total_distance_km=$5, matched_at=$6, completed_at=$7, version=version+1
		WHERE id=$8`,
		pool.DriverID, pool.State, pool.CurrentLoad.Seats, pool.CurrentLoad.Luggage,
		pool.TotalDistanceKm, pool.MatchedAt, pool.CompletedAt, pool.ID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

// UpdatePoolByVersion performs the conditional compare-and-swap update
// required by the concurrency mediator (spec §4.5/§6).
func (p *PostgresStore) UpdatePoolByVersion(ctx context.Context, pool models.Pool, expectedVersion int64) (int64, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE pools SET driver_id=$1, state=$2, current_seats=$3, current_luggage=$4,
			total_distance_km=$5, matched_at=$6, completed_at=$7, version=$8
		WHERE id=$9 AND version=$10`,
		pool.DriverID, pool.State, pool.CurrentLoad.Seats, pool.CurrentLoad.Luggage,
		pool.TotalDistanceKm, pool.MatchedAt, pool.CompletedAt, expectedVersion+1, pool.ID, expectedVersion)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrVersionConflict
	}
	return expectedVersion + 1, nil
}

func (p *PostgresStore) DeletePool(ctx context.Context, id string) error {
	// cascades to waypoints via foreign key ON DELETE CASCADE (see migrations).
	_, err := p.db.ExecContext(ctx, `DELETE FROM pools WHERE id = $1`, id)
	return err
}

func (p *PostgresStore) QueryFormingPools(ctx context.Context, maxAgeSeconds int64) ([]models.Pool, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, driver_id, vehicle_class, max_seats, max_luggage,
			current_seats, current_luggage, state, total_distance_km,
			created_at, matched_at, completed_at, version
		FROM pools WHERE state = $1 AND created_at >= now() - make_interval(secs => $2)`,
		models.PoolForming, maxAgeSeconds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Pool
	for rows.Next() {
		pool, err := scanPoolRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pool)
	}
	return out, rows.Err()
}

func (p *PostgresStore) InsertWaypoint(ctx context.Context, w models.Waypoint) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO waypoints(pool_id, passenger_id, position, kind, lat, lng)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		w.PoolID, w.PassengerID, w.Position, w.Kind, w.Coordinate.Lat, w.Coordinate.Lng)
	return err
}

func (p *PostgresStore) DeleteWaypointsForPassenger(ctx context.Context, poolID, passengerID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM waypoints WHERE pool_id = $1 AND passenger_id = $2`, poolID, passengerID)
	return err
}

func (p *PostgresStore) ListWaypoints(ctx context.Context, poolID string) ([]models.Waypoint, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT pool_id, passenger_id, position, kind, lat, lng
		FROM waypoints WHERE pool_id = $1 ORDER BY position ASC`, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Waypoint
	for rows.Next() {
		var w models.Waypoint
		if err := rows.Scan(&w.PoolID, &w.PassengerID, &w.Position, &w.Kind, &w.Coordinate.Lat, &w.Coordinate.Lng); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetSurgeZone(ctx context.Context, id string) (models.SurgeZone, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, name, center_lat, center_lng, radius_km, multiplier,
			demand_tier, active_requests, available_drivers
		FROM surge_zones WHERE id = $1`, id)
	return scanZone(row)
}

func (p *PostgresStore) ListSurgeZones(ctx context.Context) ([]models.SurgeZone, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, center_lat, center_lng, radius_km, multiplier,
			demand_tier, active_requests, available_drivers
		FROM surge_zones`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.SurgeZone
	for rows.Next() {
		z, err := scanZoneRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, z)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdateSurgeZone(ctx context.Context, z models.SurgeZone) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE surge_zones SET multiplier=$1, demand_tier=$2, active_requests=$3, available_drivers=$4
		WHERE id=$5`,
		z.Multiplier, z.DemandTier, z.ActiveRequests, z.AvailableDrivers, z.ID)
	return err
}

func (p *PostgresStore) ZoneContaining(ctx context.Context, c models.Coord) (models.SurgeZone, error) {
	// No radius filter in SQL: this returns the zone whose center is
	// nearest in raw degrees; the exact haversine containment check
	// happens in the caller via geometry.WithinRadius.
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, center_lat, center_lng, radius_km, multiplier,
			demand_tier, active_requests, available_drivers
		FROM surge_zones
		ORDER BY (center_lat - $1)^2 + (center_lng - $2)^2 ASC`, c.Lat, c.Lng)
	if err != nil {
		return models.SurgeZone{}, err
	}
	defer rows.Close()
	for rows.Next() {
		z, err := scanZoneRows(rows)
		if err != nil {
			return models.SurgeZone{}, err
		}
		return z, nil
	}
	return models.SurgeZone{}, ErrNotFound
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPassenger(row rowScanner) (models.Passenger, error) {
	var p models.Passenger
	var reason sql.NullString
	err := row.Scan(
		&p.ID, &p.UserID, &p.Pickup.Lat, &p.Pickup.Lng, &p.Dropoff.Lat, &p.Dropoff.Lng,
		&p.LuggageCount, &p.SeatsRequired, &p.MaxDetourMinutes, &p.State,
		&p.PoolID, &p.BaseFare, &p.FinalFare, &p.SurgeMultiplier,
		&p.RequestedAt, &p.MatchedAt, &p.CompletedAt, &p.CancelledAt, &reason,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Passenger{}, ErrNotFound
	}
	p.CancellationReason = reason.String
	return p, err
}

func scanPassengers(rows *sql.Rows) ([]models.Passenger, error) {
	var out []models.Passenger
	for rows.Next() {
		var p models.Passenger
		var reason sql.NullString
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.Pickup.Lat, &p.Pickup.Lng, &p.Dropoff.Lat, &p.Dropoff.Lng,
			&p.LuggageCount, &p.SeatsRequired, &p.MaxDetourMinutes, &p.State,
			&p.PoolID, &p.BaseFare, &p.FinalFare, &p.SurgeMultiplier,
			&p.RequestedAt, &p.MatchedAt, &p.CompletedAt, &p.CancelledAt, &reason,
		); err != nil {
			return nil, err
		}
		p.CancellationReason = reason.String
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPool(row rowScanner) (models.Pool, error) {
	var p models.Pool
	err := row.Scan(
		&p.ID, &p.DriverID, &p.VehicleClass, &p.MaxCapacity.Seats, &p.MaxCapacity.Luggage,
		&p.CurrentLoad.Seats, &p.CurrentLoad.Luggage, &p.State, &p.TotalDistanceKm,
		&p.CreatedAt, &p.MatchedAt, &p.CompletedAt, &p.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Pool{}, ErrNotFound
	}
	return p, err
}

func scanPoolRows(rows *sql.Rows) (models.Pool, error) {
	var p models.Pool
	err := rows.Scan(
		&p.ID, &p.DriverID, &p.VehicleClass, &p.MaxCapacity.Seats, &p.MaxCapacity.Luggage,
		&p.CurrentLoad.Seats, &p.CurrentLoad.Luggage, &p.State, &p.TotalDistanceKm,
		&p.CreatedAt, &p.MatchedAt, &p.CompletedAt, &p.Version,
	)
	return p, err
}

func scanZone(row rowScanner) (models.SurgeZone, error) {
	var z models.SurgeZone
	err := row.Scan(&z.ID, &z.Name, &z.Center.Lat, &z.Center.Lng, &z.RadiusKm, &z.Multiplier,
		&z.DemandTier, &z.ActiveRequests, &z.AvailableDrivers)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SurgeZone{}, ErrNotFound
	}
	return z, err
}

func scanZoneRows(rows *sql.Rows) (models.SurgeZone, error) {
	var z models.SurgeZone
	err := rows.Scan(&z.ID, &z.Name, &z.Center.Lat, &z.Center.Lng, &z.RadiusKm, &z.Multiplier,
		&z.DemandTier, &z.ActiveRequests, &z.AvailableDrivers)
	return z, err
}
