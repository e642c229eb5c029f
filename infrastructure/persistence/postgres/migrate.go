package postgres

import "fmt"

// migrations are applied in order and recorded verbatim. Never edit an
// entry that has shipped; append a new one.
var migrations = []string{
	`CREATE TABLE documents (
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    seq BIGSERIAL NOT NULL,
    data JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, id)
)`,
	`CREATE INDEX documents_owner_idx ON documents (collection, (data->>'ownerId'), seq)`,
	`CREATE OR REPLACE FUNCTION documents_notify() RETURNS trigger AS $$
BEGIN
    IF TG_OP = 'DELETE' THEN
        PERFORM pg_notify('documents_changed', OLD.collection);
    ELSE
        PERFORM pg_notify('documents_changed', NEW.collection);
    END IF;
    RETURN NULL;
END;
$$ LANGUAGE plpgsql`,
	`CREATE TRIGGER documents_changed AFTER INSERT OR UPDATE OR DELETE ON documents
FOR EACH ROW EXECUTE FUNCTION documents_notify()`,
}

func (s *Store) migrate(wanted []string) error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS migration
("id" SERIAL PRIMARY KEY, "query" TEXT)`); err != nil {
		return err
	}

	rows, err := s.db.Query(`SELECT query FROM migration ORDER BY id`)
	if err != nil {
		return err
	}
	existing := []string{}
	for rows.Next() {
		var query string
		if err := rows.Scan(&query); err != nil {
			rows.Close()
			return err
		}
		existing = append(existing, query)
	}
	rows.Close()

	missing, err := compareMigrations(wanted, existing)
	if err != nil {
		return err
	}

	for _, query := range missing {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
		if _, err := s.db.Exec(`INSERT INTO migration (query) VALUES ($1)`, query); err != nil {
			return err
		}
	}
	return nil
}

func compareMigrations(wanted, existing []string) ([]string, error) {
	if len(wanted) < len(existing) {
		return nil, fmt.Errorf("not enough migrations")
	}

	needed := []string{}
	for i, want := range wanted {
		switch {
		case i >= len(existing):
			needed = append(needed, want)
		case want != existing[i]:
			return nil, fmt.Errorf("incompatible migration: %v", want)
		}
	}
	return needed, nil
}
