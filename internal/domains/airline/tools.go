package airline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"taubench/internal/domains"
	"taubench/internal/toolregistry"
	"taubench/internal/worldstate"
)

const (
	usersCollection        = "users"
	reservationsCollection = "reservations"
	flightsCollection      = "flights"

	baggageFee = 50
)

var errUserNotFound = errors.New("user not found")
var errReservationNotFound = errors.New("reservation not found")

// certificateIDs are handed out in order by send_certificate, so replaying
// the same calls always yields the same payment method ids.
var certificateIDs = []string{"certificate_3221322", "certificate_3221323", "certificate_3221324"}

var airports = []map[string]string{
	{"iata": "DFW", "city": "Dallas"},
	{"iata": "JFK", "city": "New York"},
	{"iata": "LAX", "city": "Los Angeles"},
	{"iata": "ORD", "city": "Chicago"},
	{"iata": "SEA", "city": "Seattle"},
	{"iata": "SFO", "city": "San Francisco"},
}

// RegisterTools adds the airline tools to r.
func RegisterTools(r *toolregistry.Registry) error {
	tools := []toolregistry.Tool{
		toolregistry.Func(getUserDetailsDef, getUserDetails),
		toolregistry.Func(getReservationDetailsDef, getReservationDetails),
		toolregistry.Func(listAllAirportsDef, listAllAirports),
		toolregistry.Func(searchDirectFlightDef, searchDirectFlight),
		toolregistry.Func(cancelReservationDef, cancelReservation),
		toolregistry.Func(updateBaggagesDef, updateReservationBaggages),
		toolregistry.Func(updatePassengersDef, updateReservationPassengers),
		toolregistry.Func(sendCertificateDef, sendCertificate),
	}
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

var getUserDetailsDef = toolregistry.Definition{
	Name:        "get_user_details",
	Description: "Get the details of a user, including their reservations.",
	Parameters:  toolregistry.Object(toolregistry.String("user_id", "The user id, such as 'sara_doe_496'.")),
}

func getUserDetails(_ context.Context, data worldstate.Document, args toolregistry.Args) (string, error) {
	user, err := lookup(data, usersCollection, args, "user_id", errUserNotFound)
	if err != nil {
		return "", err
	}
	return domains.Observe(user)
}

var getReservationDetailsDef = toolregistry.Definition{
	Name:        "get_reservation_details",
	Description: "Get the details of a reservation.",
	Parameters:  toolregistry.Object(toolregistry.String("reservation_id", "The reservation id, such as '8JX2WO'.")),
}

func getReservationDetails(_ context.Context, data worldstate.Document, args toolregistry.Args) (string, error) {
	reservation, err := lookup(data, reservationsCollection, args, "reservation_id", errReservationNotFound)
	if err != nil {
		return "", err
	}
	return domains.Observe(reservation)
}

var listAllAirportsDef = toolregistry.Definition{
	Name:        "list_all_airports",
	Description: "List all airports and their cities.",
	Parameters:  toolregistry.Object(),
}

func listAllAirports(context.Context, worldstate.Document, toolregistry.Args) (string, error) {
	return domains.Observe(airports)
}

var searchDirectFlightDef = toolregistry.Definition{
	Name:        "search_direct_flight",
	Description: "Search direct flights between two cities on a specific date.",
	Parameters: toolregistry.Object(
		toolregistry.String("origin", "The origin city airport in three letters, such as 'JFK'."),
		toolregistry.String("destination", "The destination city airport in three letters, such as 'LAX'."),
		toolregistry.String("date", "The date of the flight in the format 'YYYY-MM-DD', such as '2024-01-01'."),
	),
}

func searchDirectFlight(_ context.Context, data worldstate.Document, args toolregistry.Args) (string, error) {
	origin, err := args.String("origin")
	if err != nil {
		return "", err
	}
	destination, err := args.String("destination")
	if err != nil {
		return "", err
	}
	date, err := args.String("date")
	if err != nil {
		return "", err
	}
	flights, err := worldstate.Collection(data, flightsCollection)
	if err != nil {
		return "", err
	}

	numbers := make([]string, 0, len(flights))
	for number := range flights {
		numbers = append(numbers, number)
	}
	sort.Strings(numbers)

	results := make([]map[string]any, 0)
	for _, number := range numbers {
		flight, ok := worldstate.AsObject(flights[number])
		if !ok || flight["origin"] != origin || flight["destination"] != destination {
			continue
		}
		dates, _ := worldstate.AsObject(flight["dates"])
		day, ok := worldstate.AsObject(dates[date])
		if !ok || day["status"] != "available" {
			continue
		}
		result := make(map[string]any, len(flight)+2)
		for key, value := range flight {
			if key != "dates" {
				result[key] = value
			}
		}
		result["available_seats"] = day["available_seats"]
		result["prices"] = day["prices"]
		results = append(results, result)
	}
	return domains.Observe(results)
}

var cancelReservationDef = toolregistry.Definition{
	Name:        "cancel_reservation",
	Description: "Cancel the whole reservation. Every payment is refunded to its original payment method.",
	Parameters:  toolregistry.Object(toolregistry.String("reservation_id", "The reservation ID, such as 'ZFA04Y'.")),
}

func cancelReservation(_ context.Context, data worldstate.Document, args toolregistry.Args) (string, error) {
	reservation, err := lookup(data, reservationsCollection, args, "reservation_id", errReservationNotFound)
	if err != nil {
		return "", err
	}
	if reservation["status"] == "cancelled" {
		return "", errors.New("reservation is already cancelled")
	}

	history, _ := worldstate.AsArray(reservation["payment_history"])
	refunds := make([]any, 0, len(history))
	for _, raw := range history {
		payment, ok := worldstate.AsObject(raw)
		if !ok {
			return "", fmt.Errorf("malformed payment entry %v", raw)
		}
		amount, ok := worldstate.Negate(payment["amount"])
		if !ok {
			return "", fmt.Errorf("malformed payment amount %v", payment["amount"])
		}
		refunds = append(refunds, map[string]any{"payment_id": payment["payment_id"], "amount": amount})
	}
	reservation["payment_history"] = append(history, refunds...)
	reservation["status"] = "cancelled"
	return domains.Observe(reservation)
}

var updateBaggagesDef = toolregistry.Definition{
	Name:        "update_reservation_baggages",
	Description: "Update the baggage information of a reservation. Each non-free bag costs 50 dollars, charged to the given payment method.",
	Parameters: toolregistry.Object(
		toolregistry.String("reservation_id", "The reservation ID, such as 'ZFA04Y'."),
		toolregistry.Integer("total_baggages", "The updated total number of baggage items included in the reservation."),
		toolregistry.Integer("nonfree_baggages", "The updated number of non-free baggage items included in the reservation."),
		toolregistry.String("payment_id", "The payment id stored in user profile, such as 'credit_card_7815826', 'gift_card_7815826', 'certificate_7815826'."),
	),
}

func updateReservationBaggages(_ context.Context, data worldstate.Document, args toolregistry.Args) (string, error) {
	reservation, err := lookup(data, reservationsCollection, args, "reservation_id", errReservationNotFound)
	if err != nil {
		return "", err
	}
	total, err := args.Int("total_baggages")
	if err != nil {
		return "", err
	}
	nonfree, err := args.Int("nonfree_baggages")
	if err != nil {
		return "", err
	}
	if total < 0 || nonfree < 0 || nonfree > total {
		return "", errors.New("invalid baggage counts")
	}
	paymentID, err := args.String("payment_id")
	if err != nil {
		return "", err
	}
	method, err := paymentMethod(data, reservation, paymentID)
	if err != nil {
		return "", err
	}
	if method["source"] == "certificate" {
		return "", errors.New("certificate cannot be used to update reservation")
	}

	current, _ := worldstate.AsNumber(reservation["nonfree_baggages"])
	price := baggageFee * max(int64(0), nonfree-int64(current))
	if method["source"] == "gift_card" {
		balance, _ := worldstate.AsNumber(method["amount"])
		if balance < float64(price) {
			return "", errors.New("gift card balance is not enough")
		}
		remaining, err := domains.Add(method["amount"], -price)
		if err != nil {
			return "", err
		}
		method["amount"] = remaining
	}

	reservation["total_baggages"] = total
	reservation["nonfree_baggages"] = nonfree
	if price != 0 {
		history, _ := worldstate.AsArray(reservation["payment_history"])
		reservation["payment_history"] = append(history, map[string]any{"payment_id": paymentID, "amount": price})
	}
	return domains.Observe(reservation)
}

var updatePassengersDef = toolregistry.Definition{
	Name:        "update_reservation_passengers",
	Description: "Update the passenger information of a reservation. The number of passengers cannot change.",
	Parameters: toolregistry.Object(
		toolregistry.String("reservation_id", "The reservation ID, such as 'ZFA04Y'."),
		toolregistry.ArrayOf("passengers", "An array of objects containing details about each passenger.",
			toolregistry.ObjectOf("", "",
				toolregistry.String("first_name", "The first name of the passenger, such as 'Noah'."),
				toolregistry.String("last_name", "The last name of the passenger, such as 'Brown'."),
				toolregistry.String("dob", "The date of birth of the passenger in the format 'YYYY-MM-DD', such as '1990-01-01'."),
			),
		),
	),
}

func updateReservationPassengers(_ context.Context, data worldstate.Document, args toolregistry.Args) (string, error) {
	reservation, err := lookup(data, reservationsCollection, args, "reservation_id", errReservationNotFound)
	if err != nil {
		return "", err
	}
	raw, err := args.Raw("passengers")
	if err != nil {
		return "", err
	}
	passengers, ok := worldstate.AsArray(worldstate.DeepCopy(raw))
	if !ok {
		return "", errors.New("passengers must be a list")
	}
	existing, _ := worldstate.AsArray(reservation["passengers"])
	if len(passengers) != len(existing) {
		return "", errors.New("number of passengers does not match")
	}
	reservation["passengers"] = passengers
	return domains.Observe(reservation)
}

var sendCertificateDef = toolregistry.Definition{
	Name:        "send_certificate",
	Description: "Send a certificate to a user. Be careful!",
	Parameters: toolregistry.Object(
		toolregistry.String("user_id", "The ID of the user to book the reservation, such as 'sara_doe_496'."),
		toolregistry.Number("amount", "Certificate amount to send."),
	),
}

func sendCertificate(_ context.Context, data worldstate.Document, args toolregistry.Args) (string, error) {
	user, err := lookup(data, usersCollection, args, "user_id", errUserNotFound)
	if err != nil {
		return "", err
	}
	amount, err := args.Raw("amount")
	if err != nil {
		return "", err
	}
	methods, ok := worldstate.AsObject(user["payment_methods"])
	if !ok {
		methods = map[string]any{}
		user["payment_methods"] = methods
	}
	for _, id := range certificateIDs {
		if _, taken := methods[id]; taken {
			continue
		}
		methods[id] = map[string]any{"source": "certificate", "amount": amount, "id": id}
		userID, _ := args.String("user_id")
		return fmt.Sprintf("Certificate %s added to user %s with amount %s.", id, userID, domains.Literal(amount)), nil
	}
	return "", errors.New("too many certificates")
}

func lookup(data worldstate.Document, collection string, args toolregistry.Args, key string, notFound error) (map[string]any, error) {
	id, err := args.String(key)
	if err != nil {
		return nil, err
	}
	rec, ok, err := worldstate.Record(data, collection, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound
	}
	return rec, nil
}

func paymentMethod(data worldstate.Document, reservation map[string]any, paymentID string) (map[string]any, error) {
	userID, _ := worldstate.AsString(reservation["user_id"])
	user, ok, err := worldstate.Record(data, usersCollection, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errUserNotFound
	}
	methods, _ := worldstate.AsObject(user["payment_methods"])
	method, ok := worldstate.AsObject(methods[paymentID])
	if !ok {
		return nil, errors.New("payment method not found")
	}
	return method, nil
}
