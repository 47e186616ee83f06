package provisioner

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
)

//go:embed indexes.sql
var indexesSQL string

var ErrProvisionFailed = errors.New("index provisioning failed")

// TxBeginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Statements returns the embedded index statements without comments, in file order.
func Statements() []string {
	statements := make([]string, 0)

	lines := make([]string, 0)
	for _, line := range strings.Split(indexesSQL, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}

		lines = append(lines, line)
	}

	for _, statement := range strings.Split(strings.Join(lines, " "), ";") {
		statement = strings.TrimSpace(statement)
		if statement != "" {
			statements = append(statements, statement)
		}
	}

	return statements
}

// Provision applies every index statement in a single transaction, either all indexes exist
// afterwards or none of the new ones do.
func Provision(ctx context.Context, db TxBeginner) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %s", ErrProvisionFailed, err.Error())
	}

	defer func() {
		err := tx.Rollback(ctx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			log.WithError(err).Error("failed to roll back index provisioning")
		}
	}()

	for _, statement := range Statements() {
		l := log.WithField("statement", statement)

		_, err = tx.Exec(ctx, statement)
		if err != nil {
			l.WithError(err).Error("failed to create index")

			return fmt.Errorf("%w: %s", ErrProvisionFailed, err.Error())
		}

		l.Debug("index ensured")
	}

	err = tx.Commit(ctx)
	if err != nil {
		return fmt.Errorf("%w: commit: %s", ErrProvisionFailed, err.Error())
	}

	log.WithField("indexes", len(Statements())).Info("metadata indexes provisioned")

	return nil
}
