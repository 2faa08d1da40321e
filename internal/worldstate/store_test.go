package worldstate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const seed = `{"reservations": {"X": {"status": "active", "payment_history": [{"payment_id": "p1", "amount": 120}]}}}`

func TestStoreResetRestoresPristineState(t *testing.T) {
	store := NewStore(JSONLoader([]byte(seed)))

	data, err := store.Reset()
	require.NoError(t, err)
	pristine, err := store.Hash()
	require.NoError(t, err)

	rec, ok, err := Record(data, "reservations", "X")
	require.NoError(t, err)
	require.True(t, ok)
	rec["status"] = "cancelled"

	mutated, err := store.Hash()
	require.NoError(t, err)
	require.NotEqual(t, pristine, mutated)

	_, err = store.Reset()
	require.NoError(t, err)
	again, err := store.Hash()
	require.NoError(t, err)
	require.Equal(t, pristine, again)
}

func TestStoresNeverShareDocuments(t *testing.T) {
	loaders := map[string]Loader{
		"json": JSONLoader([]byte(seed)),
		"copy": CopyLoader(mustDecode(t, seed)),
	}
	for name, load := range loaders {
		t.Run(name, func(t *testing.T) {
			a, b := NewStore(load), NewStore(load)
			da, err := a.Reset()
			require.NoError(t, err)
			db, err := b.Reset()
			require.NoError(t, err)

			rec, _, err := Record(da, "reservations", "X")
			require.NoError(t, err)
			history := rec["payment_history"].([]any)
			rec["payment_history"] = append(history, map[string]any{"payment_id": "p1", "amount": int64(-120)})

			other, _, err := Record(db, "reservations", "X")
			require.NoError(t, err)
			require.Len(t, other["payment_history"], 1)
		})
	}
}

func TestStoreResetWithoutLoader(t *testing.T) {
	_, err := NewStore(nil).Reset()
	require.Error(t, err)
}

func TestDecodeRejectsNonObject(t *testing.T) {
	_, err := JSONLoader([]byte(`[1, 2]`))()
	require.Error(t, err)
}

func TestDecodeKeepsHugeIntegerLiteral(t *testing.T) {
	doc := mustDecode(t, `{"n": 123456789012345678901234567890}`)
	cv, err := Canonicalize(doc)
	require.NoError(t, err)
	require.Equal(t, `{"n":123456789012345678901234567890}`, cv.String())
}

func TestNegateKeepsLiteralKind(t *testing.T) {
	n, ok := Negate(int64(120))
	require.True(t, ok)
	require.Equal(t, int64(-120), n)

	f, ok := Negate(12.5)
	require.True(t, ok)
	require.Equal(t, -12.5, f)

	_, ok = Negate("12")
	require.False(t, ok)
}

func TestCollectionErrors(t *testing.T) {
	doc := Document{"users": []any{}}
	_, err := Collection(doc, "orders")
	require.ErrorContains(t, err, "missing")
	_, err = Collection(doc, "users")
	require.ErrorContains(t, err, "want object")
}

func mustDecode(t *testing.T, raw string) Document {
	t.Helper()
	doc, err := JSONLoader([]byte(raw))()
	require.NoError(t, err)
	return doc
}
