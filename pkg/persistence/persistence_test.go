package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sampleRecord struct {
	Name  string             `json:"name"`
	Count int                `json:"count"`
	Items map[string]float64 `json:"items"`
}

func TestJSONFileStore_RoundTrip(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	store := svc.NewStore("risk", "test", "ledger")

	in := sampleRecord{Name: "a", Count: 2, Items: map[string]float64{"m1": 1.5}}
	require.NoError(t, store.Save(in))

	var out sampleRecord
	require.NoError(t, store.Load(&out))
	require.Equal(t, in, out)
}

func TestJSONFileStore_LoadMissing(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	store := svc.NewStore("risk", "test", "missing")

	var out sampleRecord
	err := store.Load(&out)
	require.ErrorIs(t, err, ErrNotExists)
}

func TestJSONFileStore_KeySanitized(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	// key 中的非法字符不应逃出 baseDir
	store := svc.NewStore("risk", "../../evil", "tag/with/slash")
	require.NoError(t, store.Save(sampleRecord{Name: "x"}))

	var out sampleRecord
	require.NoError(t, store.Load(&out))
	require.Equal(t, "x", out.Name)
}

func TestBadgerStore_RoundTrip(t *testing.T) {
	svc, err := OpenBadgerService(t.TempDir())
	require.NoError(t, err)
	defer svc.Close()

	store := svc.NewStore("risk", "test", "ledger")

	in := sampleRecord{Name: "b", Count: 7, Items: map[string]float64{"m2": 42}}
	require.NoError(t, store.Save(in))

	var out sampleRecord
	require.NoError(t, store.Load(&out))
	require.Equal(t, in, out)
}

func TestBadgerStore_LoadMissing(t *testing.T) {
	svc, err := OpenBadgerService(t.TempDir())
	require.NoError(t, err)
	defer svc.Close()

	store := svc.NewStore("risk", "test", "missing")

	var out sampleRecord
	require.ErrorIs(t, store.Load(&out), ErrNotExists)
}
