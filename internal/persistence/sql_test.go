package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/well-timeline/backend/internal/models"
	"github.com/well-timeline/backend/internal/wellstate"
)

func openTestStores(t *testing.T) map[Driver]*SQLStore {
	t.Helper()
	dir := t.TempDir()
	stores := make(map[Driver]*SQLStore)

	sqliteStore, err := Open(context.Background(), DriverSQLite, filepath.Join(dir, "sqlite", "test.db"))
	require.NoError(t, err)
	stores[DriverSQLite] = sqliteStore

	duckStore, err := Open(context.Background(), DriverDuckDB, filepath.Join(dir, "duck", "test.duckdb"),
		WithDuckDBThreads(1), WithDuckDBMemoryLimit("256MB"))
	require.NoError(t, err)
	stores[DriverDuckDB] = duckStore

	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func f(v float64) *float64 { return &v }

func sampleSession(id string) (models.AnalysisSession, []models.RawIntervention) {
	sess := *models.NewAnalysisSession(id, "file-1", "pozo.docx", 2)
	items := []models.RawIntervention{
		{Index: 0, FechaTexto: "12/05/1982", FechaISO: "1982-05-12", Text: "Canhoneado 500/510 m"},
		{Index: 1, FechaTexto: "03/06/1982", FechaISO: "1982-06-03", Text: "Squeeze 505/506 m"},
	}
	return sess, items
}

func TestSQLStore_RoundTrip(t *testing.T) {
	for driver, store := range openTestStores(t) {
		t.Run(string(driver), func(t *testing.T) {
			ctx := context.Background()
			sess, items := sampleSession("s-" + string(driver))
			initial := models.NewWellState()
			require.NoError(t, store.CreateSession(ctx, sess, items, initial))

			payload := models.InterventionPayload{
				Fecha:    strPtr("1982-05-12"),
				Punzados: []models.Punzado{{RawInterval: models.RawInterval{Desde: f(500), Hasta: f(510)}}},
			}
			next, report := wellstate.NewApplier().Apply(initial, payload)
			analysis := models.InterventionAnalysis{
				Index:      0,
				Rank:       0,
				Resumen:    "Canhoneo 500–510 m.",
				Mode:       "breve",
				Payload:    payload,
				Report:     report,
				Attempts:   1,
				AnalyzedAt: time.Now(),
			}
			require.NoError(t, store.SaveStep(ctx, sess.ID, analysis, 1, next))

			// Saving the same step again overwrites it.
			analysis.Resumen = "Canhoneo."
			require.NoError(t, store.SaveStep(ctx, sess.ID, analysis, 1, next))

			sess.AnalyzedCount = 1
			sess.Status = models.SessionStatusAnalyzing
			require.NoError(t, store.UpdateSession(ctx, sess))

			rec, err := store.LoadSession(ctx, sess.ID)
			require.NoError(t, err)
			assert.Equal(t, models.SessionStatusAnalyzing, rec.Session.Status)
			assert.Equal(t, 1, rec.Session.AnalyzedCount)
			assert.Equal(t, items, rec.Interventions)

			require.Len(t, rec.Analyses, 1)
			assert.Equal(t, "Canhoneo.", rec.Analyses[0].Resumen)
			assert.Equal(t, report.Created, rec.Analyses[0].Report.Created)
			assert.Equal(t, 510.0, *rec.Analyses[0].Payload.Punzados[0].Hasta)

			require.Len(t, rec.Snapshots, 2)
			assert.Empty(t, rec.Snapshots[0].Perforations)
			require.Len(t, rec.Snapshots[1].Perforations, 1)
			assert.Equal(t, next.Perforations[0].ID, rec.Snapshots[1].Perforations[0].ID)

			list, err := store.ListSessions(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, sess.ID, list[0].ID)

			require.NoError(t, store.DeleteSession(ctx, sess.ID))
			_, err = store.LoadSession(ctx, sess.ID)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{driver: DriverPostgres}
	assert.Equal(t, "SELECT $1, $2", pg.rebind("SELECT ?, ?"))

	lite := &SQLStore{driver: DriverSQLite}
	assert.Equal(t, "SELECT ?, ?", lite.rebind("SELECT ?, ?"))
}

func TestParseDriver(t *testing.T) {
	d, err := ParseDriver("")
	require.NoError(t, err)
	assert.Equal(t, DriverDuckDB, d)

	d, err = ParseDriver("PostgreSQL")
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, d)

	_, err = ParseDriver("oracle")
	assert.Error(t, err)
}

func strPtr(s string) *string { return &s }
