package domains_test

import (
	"testing"

	"taubench/internal/domains"
	"taubench/internal/domains/airline"
	"taubench/internal/domains/retail"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalog() *domains.Catalog {
	return domains.NewCatalog(map[string]domains.Constructor{
		airline.Name: airline.New,
		retail.Name:  retail.New,
	})
}

func TestCatalogResolvesDomains(t *testing.T) {
	c := newCatalog()
	assert.Equal(t, []string{"airline", "retail"}, c.Names())

	d, err := c.Get("retail")
	require.NoError(t, err)
	assert.Equal(t, "retail", d.Name)
	assert.NotEmpty(t, d.Wiki)
	assert.NotEmpty(t, d.Rules)

	_, err = c.Get("banking")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "airline, retail")
}

func TestDomainSplits(t *testing.T) {
	d, err := newCatalog().Get("airline")
	require.NoError(t, err)
	assert.Equal(t, []string{"test", "train"}, d.SplitNames())

	tasks, err := d.Tasks("")
	require.NoError(t, err)
	assert.NotEmpty(t, tasks)

	_, err = d.Tasks("dev")
	require.Error(t, err)
}

func TestRegistriesAreIndependent(t *testing.T) {
	d, err := newCatalog().Get("retail")
	require.NoError(t, err)
	a, err := d.NewRegistry(nil)
	require.NoError(t, err)
	b, err := d.NewRegistry(nil)
	require.NoError(t, err)
	assert.Equal(t, a.Names(), b.Names())
	assert.True(t, a.IsTerminal("transfer_to_human_agents"))
}

func TestAddKeepsIntegerKind(t *testing.T) {
	sum, err := domains.Add(int64(2), int64(3))
	require.NoError(t, err)
	assert.Equal(t, int64(5), sum)

	sum, err = domains.Add(int64(2), 0.5)
	require.NoError(t, err)
	assert.Equal(t, 2.5, sum)

	_, err = domains.Add("x", int64(1))
	require.Error(t, err)
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, "200", domains.Literal(int64(200)))
	assert.Equal(t, "150.0", domains.Literal(150.0))
	assert.Equal(t, "abc", domains.Literal("abc"))
}
