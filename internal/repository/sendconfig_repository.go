package repository

import (
	"database/sql"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
)

// SendConfigRepositoryInterface gates sending against per-domain ceilings.
// Reserve is the authoritative check: an atomic increment-and-check, so
// concurrent workers cannot overrun a limit the way check-then-increment
// would.
type SendConfigRepositoryInterface interface {
	GetByID(id int) (*model.SendConfiguration, error)
	// Reserve consumes one send slot if the configuration is active,
	// verified, and under both ceilings. Returns false when exhausted.
	Reserve(id int) (bool, error)
}

type SendConfigRepository struct {
	DB *sql.DB
}

func (r *SendConfigRepository) GetByID(id int) (*model.SendConfiguration, error) {
	query := `
		SELECT id, domain_name, from_email, from_name, COALESCE(reply_to, ''),
		       COALESCE(smtp_host, ''), smtp_port, COALESCE(smtp_username, ''), COALESCE(smtp_password, ''),
		       use_tls, use_ssl, is_active, is_verified,
		       daily_limit, monthly_limit, daily_used, monthly_used,
		       last_used_at, created_at
		FROM send_configurations WHERE id=$1
	`
	var c model.SendConfiguration
	err := r.DB.QueryRow(query, id).Scan(
		&c.ID, &c.DomainName, &c.FromEmail, &c.FromName, &c.ReplyTo,
		&c.SMTPHost, &c.SMTPPort, &c.SMTPUsername, &c.SMTPPassword,
		&c.UseTLS, &c.UseSSL, &c.Active, &c.Verified,
		&c.DailyLimit, &c.MonthlyLimit, &c.DailyUsed, &c.MonthlyUsed,
		&c.LastUsedAt, &c.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewSendConfigNotFound(id)
		}
		return nil, err
	}
	return &c, nil
}

func (r *SendConfigRepository) Reserve(id int) (bool, error) {
	res, err := r.DB.Exec(`
		UPDATE send_configurations
		SET daily_used = daily_used + 1,
		    monthly_used = monthly_used + 1,
		    last_used_at = NOW()
		WHERE id = $1
		  AND is_active AND is_verified
		  AND daily_used < daily_limit
		  AND monthly_used < monthly_limit`, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

var _ SendConfigRepositoryInterface = (*SendConfigRepository)(nil)
