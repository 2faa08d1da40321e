package airline

import (
	"context"
	"testing"

	"taubench/internal/task"
	"taubench/internal/toolregistry"
	"taubench/internal/worldstate"

	"github.com/stretchr/testify/require"
)

func newFixture(t *testing.T) (*toolregistry.Registry, worldstate.Document) {
	t.Helper()
	d, err := New()
	require.NoError(t, err)
	r, err := d.NewRegistry(nil)
	require.NoError(t, err)
	data, err := d.Loader()
	require.NoError(t, err)
	return r, data
}

func dispatch(t *testing.T, r *toolregistry.Registry, data worldstate.Document, name string, kwargs map[string]any) (string, error) {
	t.Helper()
	return r.Dispatch(context.Background(), data, task.Action{Name: name, Kwargs: kwargs})
}

func reservation(t *testing.T, data worldstate.Document, id string) map[string]any {
	t.Helper()
	rec, ok, err := worldstate.Record(data, reservationsCollection, id)
	require.NoError(t, err)
	require.True(t, ok)
	return rec
}

func TestCancelReservationRefundsEveryPayment(t *testing.T) {
	r, data := newFixture(t)

	obs, err := dispatch(t, r, data, "cancel_reservation", map[string]any{"reservation_id": "AIXC49"})
	require.NoError(t, err)
	require.Contains(t, obs, `"status":"cancelled"`)

	rec := reservation(t, data, "AIXC49")
	history := rec["payment_history"].([]any)
	require.Len(t, history, 4)
	require.Equal(t, map[string]any{"payment_id": "credit_card_4421486", "amount": int64(-1604)}, history[2])
	require.Equal(t, map[string]any{"payment_id": "gift_card_9017012", "amount": -500.0}, history[3])

	obs, err = dispatch(t, r, data, "cancel_reservation", map[string]any{"reservation_id": "AIXC49"})
	require.Error(t, err)
	require.Equal(t, "Error: reservation is already cancelled", obs)
}

func TestUpdateBaggagesChargesGiftCard(t *testing.T) {
	r, data := newFixture(t)

	_, err := dispatch(t, r, data, "update_reservation_baggages", map[string]any{
		"reservation_id": "AIXC49", "total_baggages": int64(3), "nonfree_baggages": int64(1), "payment_id": "gift_card_9017012",
	})
	require.NoError(t, err)

	rec := reservation(t, data, "AIXC49")
	require.Equal(t, int64(3), rec["total_baggages"])
	require.Equal(t, int64(1), rec["nonfree_baggages"])
	history := rec["payment_history"].([]any)
	require.Equal(t, map[string]any{"payment_id": "gift_card_9017012", "amount": int64(50)}, history[len(history)-1])

	user, _, _ := worldstate.Record(data, usersCollection, "mia_li_3668")
	card := user["payment_methods"].(map[string]any)["gift_card_9017012"].(map[string]any)
	require.Equal(t, 78.0, card["amount"])
}

func TestUpdateBaggagesRejections(t *testing.T) {
	r, data := newFixture(t)
	before, err := worldstate.Hash(data)
	require.NoError(t, err)

	cases := map[string]map[string]any{
		"gift card balance is not enough": {
			"reservation_id": "JG7FMM", "total_baggages": int64(1), "nonfree_baggages": int64(1), "payment_id": "gift_card_3481935",
		},
		"certificate cannot be used": {
			"reservation_id": "NO6JO3", "total_baggages": int64(2), "nonfree_baggages": int64(1), "payment_id": "certificate_7504069",
		},
		"payment method not found": {
			"reservation_id": "NO6JO3", "total_baggages": int64(2), "nonfree_baggages": int64(1), "payment_id": "credit_card_2929732",
		},
		"invalid baggage counts": {
			"reservation_id": "NO6JO3", "total_baggages": int64(1), "nonfree_baggages": int64(2), "payment_id": "credit_card_4421486",
		},
	}
	for want, kwargs := range cases {
		obs, err := dispatch(t, r, data, "update_reservation_baggages", kwargs)
		require.Error(t, err, want)
		require.Contains(t, obs, want)
	}

	after, err := worldstate.Hash(data)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestSendCertificateAssignsSequentialIDs(t *testing.T) {
	r, data := newFixture(t)

	obs, err := dispatch(t, r, data, "send_certificate", map[string]any{"user_id": "sofia_kim_7287", "amount": int64(200)})
	require.NoError(t, err)
	require.Equal(t, "Certificate certificate_3221322 added to user sofia_kim_7287 with amount 200.", obs)

	obs, err = dispatch(t, r, data, "send_certificate", map[string]any{"user_id": "sofia_kim_7287", "amount": 150.0})
	require.NoError(t, err)
	require.Equal(t, "Certificate certificate_3221323 added to user sofia_kim_7287 with amount 150.0.", obs)

	_, err = dispatch(t, r, data, "send_certificate", map[string]any{"user_id": "sofia_kim_7287", "amount": int64(1)})
	require.NoError(t, err)
	obs, err = dispatch(t, r, data, "send_certificate", map[string]any{"user_id": "sofia_kim_7287", "amount": int64(1)})
	require.Error(t, err)
	require.Equal(t, "Error: too many certificates", obs)
}

func TestUpdatePassengersCopiesArguments(t *testing.T) {
	r, data := newFixture(t)
	passengers := []any{map[string]any{"first_name": "Omar", "last_name": "Davis", "dob": "1982-10-20"}}
	kwargs := map[string]any{"reservation_id": "JG7FMM", "passengers": passengers}

	_, err := dispatch(t, r, data, "update_reservation_passengers", kwargs)
	require.NoError(t, err)

	stored := reservation(t, data, "JG7FMM")["passengers"].([]any)[0].(map[string]any)
	stored["dob"] = "mutated"
	require.Equal(t, "1982-10-20", passengers[0].(map[string]any)["dob"])

	obs, err := dispatch(t, r, data, "update_reservation_passengers", map[string]any{"reservation_id": "JG7FMM", "passengers": []any{}})
	require.Error(t, err)
	require.Equal(t, "Error: number of passengers does not match", obs)

	obs, err = dispatch(t, r, data, "update_reservation_passengers", map[string]any{
		"reservation_id": "JG7FMM",
		"passengers":     []any{map[string]any{"first_name": "Omar"}},
	})
	require.Error(t, err)
	require.Contains(t, obs, "Error: invalid arguments")
}

func TestSearchDirectFlight(t *testing.T) {
	r, data := newFixture(t)

	obs, err := dispatch(t, r, data, "search_direct_flight", map[string]any{"origin": "JFK", "destination": "SEA", "date": "2024-05-20"})
	require.NoError(t, err)
	require.Contains(t, obs, "HAT100")
	require.Contains(t, obs, "HAT277")
	require.NotContains(t, obs, "dates")

	obs, err = dispatch(t, r, data, "search_direct_flight", map[string]any{"origin": "JFK", "destination": "SEA", "date": "2024-05-21"})
	require.NoError(t, err)
	require.Equal(t, "[]", obs)
}

func TestLookupErrors(t *testing.T) {
	r, data := newFixture(t)
	obs, err := dispatch(t, r, data, "get_user_details", map[string]any{"user_id": "nobody"})
	require.Error(t, err)
	require.Equal(t, "Error: user not found", obs)

	obs, err = dispatch(t, r, data, "get_reservation_details", map[string]any{"reservation_id": "ZZZZZZ"})
	require.Error(t, err)
	require.Equal(t, "Error: reservation not found", obs)
}

func TestGroundTruthActionsReplayCleanly(t *testing.T) {
	d, err := New()
	require.NoError(t, err)
	r, err := d.NewRegistry(nil)
	require.NoError(t, err)

	for _, split := range d.SplitNames() {
		tasks, err := d.Tasks(split)
		require.NoError(t, err)
		require.NotEmpty(t, tasks)
		for _, tk := range tasks {
			data, err := d.Loader()
			require.NoError(t, err)
			for _, action := range tk.Actions {
				require.NotEqual(t, toolregistry.KindUnregistered, r.Resolve(action.Name), "%s/%s: %s", split, tk.ID, action.Name)
				if action.IsRespond() || r.IsTerminal(action.Name) {
					continue
				}
				_, err := r.Dispatch(context.Background(), data, action)
				require.NoError(t, err, "%s/%s: %s", split, tk.ID, action)
			}
		}
	}
}

func TestRegistryCatalogue(t *testing.T) {
	r, _ := newFixture(t)
	names := r.Names()
	require.Contains(t, names, "cancel_reservation")
	require.Contains(t, names, "transfer_to_human_agents")
	require.True(t, r.IsTerminal("transfer_to_human_agents"))
}
