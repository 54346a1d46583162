package console

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/blockadesystems/caconsole/internal/model"
)

func TestCAList_ListReplacesWholesale(t *testing.T) {
	answers := [][]model.CA{
		{{SerialNumber: "1", Name: "alpha"}, {SerialNumber: "2", Name: "beta"}},
		{{SerialNumber: "3", Name: "gamma"}},
	}
	api := &stubAPI{}
	api.listCAs = func() ([]model.CA, error) {
		next := answers[0]
		answers = answers[1:]
		return next, nil
	}
	m := NewCAListModel(api, nil, zaptest.NewLogger(t))
	assert.False(t, m.Loaded())

	require.NoError(t, m.List(context.Background()))
	assert.Len(t, m.View().CAs, 2)
	assert.True(t, m.Loaded())

	require.NoError(t, m.List(context.Background()))
	view := m.View()
	require.Len(t, view.CAs, 1)
	assert.Equal(t, "gamma", view.CAs[0].Name)
}

func TestCAList_FailedListKeepsPriorListing(t *testing.T) {
	fail := false
	api := &stubAPI{}
	api.listCAs = func() ([]model.CA, error) {
		if fail {
			return nil, errBoom
		}
		return []model.CA{{SerialNumber: "1001", Name: "CA1"}}, nil
	}
	m := NewCAListModel(api, nil, zaptest.NewLogger(t))
	require.NoError(t, m.List(context.Background()))

	fail = true
	err := m.List(context.Background())
	require.ErrorIs(t, err, errBoom)

	view := m.View()
	require.Len(t, view.CAs, 1)
	assert.Equal(t, "1001", view.CAs[0].SerialNumber)
	assert.Contains(t, view.Errors, SliceCAs)

	fail = false
	require.NoError(t, m.List(context.Background()))
	assert.Empty(t, m.View().Errors, "a successful fetch clears the error")
}

func TestCAList_Ordering(t *testing.T) {
	api := &stubAPI{}
	api.listCAs = func() ([]model.CA, error) {
		return []model.CA{
			{SerialNumber: "30", Name: "beta"},
			{SerialNumber: "10", Name: "alpha"},
			{SerialNumber: "20", Name: "beta"},
		}, nil
	}
	m := NewCAListModel(api, nil, zaptest.NewLogger(t))
	require.NoError(t, m.List(context.Background()))

	serials := func() []string {
		var out []string
		for _, ca := range m.View().CAs {
			out = append(out, ca.SerialNumber)
		}
		return out
	}

	assert.Equal(t, PredicateName, m.View().Predicate)
	assert.Equal(t, []string{"10", "20", "30"}, serials(), "name ascending, ties by serial")

	m.SetOrder(PredicateName, true)
	assert.Equal(t, []string{"30", "20", "10"}, serials())

	m.SetOrder(PredicateSerialNumber, false)
	assert.Equal(t, []string{"10", "20", "30"}, serials())

	m.SetOrder("bogus", false)
	assert.Equal(t, PredicateName, m.View().Predicate)
}

func TestCAList_CreateNavigatesToServerSerial(t *testing.T) {
	var submitted model.CASpec
	api := &stubAPI{}
	api.createCA = func(spec model.CASpec) (*model.CA, error) {
		submitted = spec
		return &model.CA{SerialNumber: "3001", Name: spec.Name}, nil
	}
	nav := &recorder{}
	m := NewCAListModel(api, nav, zaptest.NewLogger(t))

	spec := NewCASpec()
	spec.Name = "New CA"
	ca, err := m.Create(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, "3001", ca.SerialNumber)
	assert.Equal(t, []string{"/ca/3001"}, nav.Paths())
	assert.True(t, submitted.Visible, "form default is visible")
}

func TestCAList_FailedCreateDoesNotNavigate(t *testing.T) {
	nav := &recorder{}
	m := NewCAListModel(&stubAPI{}, nav, zaptest.NewLogger(t))

	_, err := m.Create(context.Background(), model.CASpec{Name: "x"})
	var mErr *MutationError
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, model.OperationCreateCA, mErr.Op)
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, nav.Paths())
}

func TestCAList_ImportIsForwardedUnvalidated(t *testing.T) {
	var submitted model.CASpec
	api := &stubAPI{}
	api.createCA = func(spec model.CASpec) (*model.CA, error) {
		submitted = spec
		return &model.CA{SerialNumber: "4001"}, nil
	}
	nav := &recorder{}
	m := NewCAImportModel(api, nav, zaptest.NewLogger(t))
	spec := m.Form()
	spec.PEMCertificate = "not really pem"

	_, err := m.Import(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, "not really pem", submitted.PEMCertificate)
	assert.True(t, submitted.IsImport())
	assert.Equal(t, []string{"/ca/4001"}, nav.Paths())
	assert.NoError(t, m.Load(context.Background()))
}

func TestCAList_StaleResponseDiscardedAfterClose(t *testing.T) {
	api := &stubAPI{}
	var m *CAListModel
	api.listCAs = func() ([]model.CA, error) {
		m.Close()
		return []model.CA{{SerialNumber: "1"}}, nil
	}
	m = NewCAListModel(api, nil, zaptest.NewLogger(t))

	require.NoError(t, m.List(context.Background()))
	assert.Empty(t, m.View().CAs)
	assert.False(t, m.Loaded())
}

func TestCAList_StaleFailureReturnsNil(t *testing.T) {
	api := &stubAPI{}
	var m *CAListModel
	api.listCAs = func() ([]model.CA, error) {
		m.Close()
		return nil, errBoom
	}
	m = NewCAListModel(api, nil, zaptest.NewLogger(t))

	assert.NoError(t, m.List(context.Background()))
	assert.Empty(t, m.View().Errors, "a dropped response records no error")
}
