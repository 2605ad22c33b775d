package enrich

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tutordex/core/internal/model"
)

type fakeGeocoder struct {
	code string
	ok   bool
}

func (g fakeGeocoder) Lookup(context.Context, string) (string, bool, error) { return g.code, g.ok, nil }

func TestFillPostalCodes_ScansRawTextWhenEmpty(t *testing.T) {
	a := &model.Assignment{}
	FillPostalCodes(context.Background(), a, "Tutor needed at Bukit Timah 123456, near 123456 and 654321", nil)
	require.Equal(t, []string{"123456", "654321"}, a.PostalCodes)
}

func TestFillPostalCodes_DoesNotOverwriteExisting(t *testing.T) {
	a := &model.Assignment{PostalCodes: []string{"111111"}}
	FillPostalCodes(context.Background(), a, "999999 in text", nil)
	require.Equal(t, []string{"111111"}, a.PostalCodes)
}

func TestFillPostalCodes_FallsBackToGeocoder(t *testing.T) {
	a := &model.Assignment{Addresses: []string{"Bukit Timah Road"}}
	FillPostalCodes(context.Background(), a, "no postal code here", fakeGeocoder{code: "567890", ok: true})
	require.Equal(t, []string{"567890"}, a.PostalCodesEstimated)
}

func TestFillPostalCodes_NoAddressNoGeocodeCall(t *testing.T) {
	a := &model.Assignment{}
	FillPostalCodes(context.Background(), a, "no postal code here", fakeGeocoder{code: "567890", ok: true})
	require.Empty(t, a.PostalCodesEstimated)
}
