package repository

import (
	"database/sql"
	"encoding/json"
	"sort"

	"github.com/unclebandit/mailleopard-backend/internal/model"
)

// RecipientRepositoryInterface resolves campaign audiences from the contact
// store. The engine treats contacts as read-only except for unsubscribes.
type RecipientRepositoryInterface interface {
	// ResolveForCampaign expands the campaign's lists into the deduplicated,
	// eligible recipient set, ordered by recipient id for deterministic
	// resumes.
	ResolveForCampaign(campaignID int) ([]model.Recipient, error)
	GetByID(id int) (*model.Recipient, error)
	MarkUnsubscribed(id int) error
}

type RecipientRepository struct {
	DB *sql.DB
}

const recipientColumns = `id, email, COALESCE(first_name, ''), COALESCE(last_name, ''),
	COALESCE(company, ''), COALESCE(city, ''), COALESCE(country, ''),
	COALESCE(custom_fields, '{}'), status, is_active`

func scanRecipient(row interface{ Scan(...any) error }) (*model.Recipient, error) {
	var rec model.Recipient
	var rawFields []byte
	err := row.Scan(
		&rec.ID, &rec.Email, &rec.FirstName, &rec.LastName,
		&rec.Company, &rec.City, &rec.Country,
		&rawFields, &rec.Status, &rec.IsActive,
	)
	if err != nil {
		return nil, err
	}
	if len(rawFields) > 0 {
		if err := json.Unmarshal(rawFields, &rec.CustomFields); err != nil {
			// Bad custom-field JSON degrades to no personalization data.
			rec.CustomFields = nil
		}
	}
	return &rec, nil
}

// ResolveForCampaign deduplicates by lowercased email across all of the
// campaign's source lists, keeping the lowest contact id per address.
func (r *RecipientRepository) ResolveForCampaign(campaignID int) ([]model.Recipient, error) {
	query := `
		SELECT DISTINCT ON (LOWER(c.email)) ` + recipientColumns + `
		FROM contacts c
		JOIN contact_list_members m ON m.contact_id = c.id
		JOIN campaign_lists cl ON cl.list_id = m.list_id
		WHERE cl.campaign_id = $1
		  AND c.is_active
		  AND c.status = 'active'
		ORDER BY LOWER(c.email), c.id
	`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []model.Recipient{}
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// DISTINCT ON forces email ordering; re-sort by id so enumeration is
	// stable across resumes.
	sort.Slice(recipients, func(i, j int) bool { return recipients[i].ID < recipients[j].ID })
	return recipients, nil
}

func (r *RecipientRepository) GetByID(id int) (*model.Recipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM contacts WHERE id = $1`
	rec, err := scanRecipient(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (r *RecipientRepository) MarkUnsubscribed(id int) error {
	_, err := r.DB.Exec(`UPDATE contacts SET status='unsubscribed', updated_at=NOW() WHERE id=$1`, id)
	return err
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
