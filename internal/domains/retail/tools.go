package retail

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"taubench/internal/domains"
	"taubench/internal/toolregistry"
	"taubench/internal/worldstate"
)

const (
	usersCollection    = "users"
	ordersCollection   = "orders"
	productsCollection = "products"
)

var (
	errUserNotFound    = errors.New("user not found")
	errOrderNotFound   = errors.New("order not found")
	errProductNotFound = errors.New("product not found")
)

var cancelReasons = []string{"no longer needed", "ordered by mistake"}

// RegisterTools adds the retail tools to r.
func RegisterTools(r *toolregistry.Registry) error {
	tools := []toolregistry.Tool{
		toolregistry.Func(findUserByEmailDef, findUserIDByEmail),
		toolregistry.Func(findUserByNameZipDef, findUserIDByNameZip),
		toolregistry.Func(getUserDetailsDef, getUserDetails),
		toolregistry.Func(getOrderDetailsDef, getOrderDetails),
		toolregistry.Func(getProductDetailsDef, getProductDetails),
		toolregistry.Func(listProductTypesDef, listAllProductTypes),
		toolregistry.Func(cancelPendingOrderDef, cancelPendingOrder),
		toolregistry.Func(modifyOrderAddressDef, modifyPendingOrderAddress),
		toolregistry.Func(modifyUserAddressDef, modifyUserAddress),
		toolregistry.Func(returnItemsDef, returnDeliveredOrderItems),
	}
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

var findUserByEmailDef = toolregistry.Definition{
	Name:        "find_user_id_by_email",
	Description: "Find user id by email. If the user is not found, the function will return an error message.",
	Parameters:  toolregistry.Object(toolregistry.String("email", "The email of the user, such as 'something@example.com'.")),
}

func findUserIDByEmail(_ context.Context, data worldstate.Document, args toolregistry.Args) (string, error) {
	email, err := args.String("email")
	if err != nil {
		return "", err
	}
	return findUser(data, func(user map[string]any) bool {
		stored, _ := worldstate.AsString(user["email"])
		return strings.EqualFold(stored, email)
	})
}

var findUserByNameZipDef = toolregistry.Definition{
	Name:        "find_user_id_by_name_zip",
	Description: "Find user id by first name, last name, and zip code. Use this only when the user cannot be located by email.",
	Parameters: toolregistry.Object(
		toolregistry.String("first_name", "The first name of the customer, such as 'John'."),
		toolregistry.String("last_name", "The last name of the customer, such as 'Doe'."),
		toolregistry.String("zip", "The zip code of the customer, such as '12345'."),
	),
}

func findUserIDByNameZip(_ context.Context, data worldstate.Document, args toolregistry.Args) (string, error) {
	first, err := args.String("first_name")
	if err != nil {
		return "", err
	}
	last, err := args.String("last_name")
	if err != nil {
		return "", err
	}
	zip, err := args.String("zip")
	if err != nil {
		return "", err
	}
	return findUser(data, func(user map[string]any) bool {
		name, _ := worldstate.AsObject(user["name"])
		address, _ := worldstate.AsObject(user["address"])
		storedFirst, _ := worldstate.AsString(name["first_name"])
		storedLast, _ := worldstate.AsString(name["last_name"])
		return strings.EqualFold(storedFirst, first) && strings.EqualFold(storedLast, last) && address["zip"] == zip
	})
}

func findUser(data worldstate.Document, match func(map[string]any) bool) (string, error) {
	users, err := worldstate.Collection(data, usersCollection)
	if err != nil {
		return "", err
	}
	for _, id := range sortedKeys(users) {
		user, ok := worldstate.AsObject(users[id])
		if ok && match(user) {
			return id, nil
		}
	}
	return "", errUserNotFound
}

var getUserDetailsDef = toolregistry.Definition{
	Name:        "get_user_details",
	Description: "Get the details of a user, including their orders.",
	Parameters:  toolregistry.Object(toolregistry.String("user_id", "The user id, such as 'sara_doe_496'.")),
}

func getUserDetails(_ context.Context, data worldstate.Document, args toolregistry.Args) (string, error) {
	user, err := lookup(data, usersCollection, args, "user_id", errUserNotFound)
	if err != nil {
		return "", err
	}
	return domains.Observe(user)
}

var getOrderDetailsDef = toolregistry.Definition{
	Name:        "get_order_details",
	Description: "Get the status and details of an order.",
	Parameters:  toolregistry.Object(toolregistry.String("order_id", "The order id, such as '#W0000000'. Be careful there is a '#' symbol at the beginning of the order id.")),
}

func getOrderDetails(_ context.Context, data worldstate.Document, args toolregistry.Args) (string, error) {
	order, err := lookup(data, ordersCollection, args, "order_id", errOrderNotFound)
	if err != nil {
		return "", err
	}
	return domains.Observe(order)
}

var getProductDetailsDef = toolregistry.Definition{
	Name:        "get_product_details",
	Description: "Get the inventory details of a product.",
	Parameters:  toolregistry.Object(toolregistry.String("product_id", "The product id, such as '6086499569'. Be careful the product id is different from the item id.")),
}

func getProductDetails(_ context.Context, data worldstate.Document, args toolregistry.Args) (string, error) {
	product, err := lookup(data, productsCollection, args, "product_id", errProductNotFound)
	if err != nil {
		return "", err
	}
	return domains.Observe(product)
}

var listProductTypesDef = toolregistry.Definition{
	Name:        "list_all_product_types",
	Description: "List the name and product id of all product types.",
	Parameters:  toolregistry.Object(),
}

func listAllProductTypes(_ context.Context, data worldstate.Document, _ toolregistry.Args) (string, error) {
	products, err := worldstate.Collection(data, productsCollection)
	if err != nil {
		return "", err
	}
	byName := make(map[string]any, len(products))
	for id, raw := range products {
		product, ok := worldstate.AsObject(raw)
		if !ok {
			continue
		}
		name, _ := worldstate.AsString(product["name"])
		byName[name] = id
	}
	return domains.Observe(byName)
}

var cancelPendingOrderDef = toolregistry.Definition{
	Name:        "cancel_pending_order",
	Description: "Cancel a pending order. Refunds go back to the original payment methods; gift card refunds are immediate.",
	Parameters: toolregistry.Object(
		toolregistry.String("order_id", "The order id, such as '#W0000000'."),
		toolregistry.Enum("reason", "The reason for cancellation.", cancelReasons...),
	),
}

func cancelPendingOrder(_ context.Context, data worldstate.Document, args toolregistry.Args) (string, error) {
	order, err := lookup(data, ordersCollection, args, "order_id", errOrderNotFound)
	if err != nil {
		return "", err
	}
	if order["status"] != "pending" {
		return "", errors.New("non-pending order cannot be cancelled")
	}
	reason, err := args.String("reason")
	if err != nil {
		return "", err
	}

	history, _ := worldstate.AsArray(order["payment_history"])
	refunds := make([]any, 0, len(history))
	for _, raw := range history {
		payment, ok := worldstate.AsObject(raw)
		if !ok {
			return "", fmt.Errorf("malformed payment entry %v", raw)
		}
		methodID, _ := worldstate.AsString(payment["payment_method_id"])
		refunds = append(refunds, map[string]any{
			"transaction_type":  "refund",
			"amount":            payment["amount"],
			"payment_method_id": methodID,
		})
		if !strings.Contains(methodID, "gift_card") {
			continue
		}
		method, err := userPaymentMethod(data, order, methodID)
		if err != nil {
			return "", err
		}
		balance, err := domains.Add(method["balance"], payment["amount"])
		if err != nil {
			return "", err
		}
		method["balance"] = domains.Round2(balance)
	}

	order["status"] = "cancelled"
	order["cancel_reason"] = reason
	order["payment_history"] = append(history, refunds...)
	return domains.Observe(order)
}

func addressParams() []toolregistry.Property {
	return []toolregistry.Property{
		toolregistry.String("address1", "The first line of the address, such as '123 Main St'."),
		toolregistry.String("address2", "The second line of the address, such as 'Apt 1' or ''."),
		toolregistry.String("city", "The city, such as 'San Francisco'."),
		toolregistry.String("state", "The state, such as 'CA'."),
		toolregistry.String("country", "The country, such as 'USA'."),
		toolregistry.String("zip", "The zip code, such as '12345'."),
	}
}

func addressFromArgs(args toolregistry.Args) (map[string]any, error) {
	address := make(map[string]any, 6)
	for _, key := range []string{"address1", "address2", "city", "state", "country", "zip"} {
		v, err := args.String(key)
		if err != nil {
			return nil, err
		}
		address[key] = v
	}
	return address, nil
}

var modifyOrderAddressDef = toolregistry.Definition{
	Name:        "modify_pending_order_address",
	Description: "Modify the shipping address of a pending order.",
	Parameters: toolregistry.Object(append(
		[]toolregistry.Property{toolregistry.String("order_id", "The order id, such as '#W0000000'.")},
		addressParams()...,
	)...),
}

func modifyPendingOrderAddress(_ context.Context, data worldstate.Document, args toolregistry.Args) (string, error) {
	order, err := lookup(data, ordersCollection, args, "order_id", errOrderNotFound)
	if err != nil {
		return "", err
	}
	if order["status"] != "pending" {
		return "", errors.New("non-pending order cannot be modified")
	}
	address, err := addressFromArgs(args)
	if err != nil {
		return "", err
	}
	order["address"] = address
	return domains.Observe(order)
}

var modifyUserAddressDef = toolregistry.Definition{
	Name:        "modify_user_address",
	Description: "Modify the default address of a user.",
	Parameters: toolregistry.Object(append(
		[]toolregistry.Property{toolregistry.String("user_id", "The user id, such as 'sara_doe_496'.")},
		addressParams()...,
	)...),
}

func modifyUserAddress(_ context.Context, data worldstate.Document, args toolregistry.Args) (string, error) {
	user, err := lookup(data, usersCollection, args, "user_id", errUserNotFound)
	if err != nil {
		return "", err
	}
	address, err := addressFromArgs(args)
	if err != nil {
		return "", err
	}
	user["address"] = address
	return domains.Observe(user)
}

var returnItemsDef = toolregistry.Definition{
	Name:        "return_delivered_order_items",
	Description: "Return some items of a delivered order. The refund goes to the original payment method or an existing gift card.",
	Parameters: toolregistry.Object(
		toolregistry.String("order_id", "The order id, such as '#W0000000'."),
		toolregistry.ArrayOf("item_ids", "The item ids to be returned, such as ['1008292230']. An item id may appear more than once.",
			toolregistry.Property{Type: "string"}),
		toolregistry.String("payment_method_id", "The payment method id to refund to, such as 'gift_card_0000000' or 'credit_card_0000000'."),
	),
}

func returnDeliveredOrderItems(_ context.Context, data worldstate.Document, args toolregistry.Args) (string, error) {
	order, err := lookup(data, ordersCollection, args, "order_id", errOrderNotFound)
	if err != nil {
		return "", err
	}
	if order["status"] != "delivered" {
		return "", errors.New("non-delivered order cannot be returned")
	}
	methodID, err := args.String("payment_method_id")
	if err != nil {
		return "", err
	}
	if _, err := userPaymentMethod(data, order, methodID); err != nil {
		return "", err
	}
	if !strings.Contains(methodID, "gift_card") && methodID != originalPaymentMethod(order) {
		return "", errors.New("payment method should be either the original payment method or a gift card")
	}
	itemIDs, err := args.Strings("item_ids")
	if err != nil {
		return "", err
	}

	available := make(map[string]int)
	items, _ := worldstate.AsArray(order["items"])
	for _, raw := range items {
		item, _ := worldstate.AsObject(raw)
		if id, ok := worldstate.AsString(item["item_id"]); ok {
			available[id]++
		}
	}
	requested := make(map[string]int, len(itemIDs))
	for _, id := range itemIDs {
		requested[id]++
		if requested[id] > available[id] {
			return "", errors.New("some item not found")
		}
	}

	sort.Strings(itemIDs)
	returned := make([]any, len(itemIDs))
	for i, id := range itemIDs {
		returned[i] = id
	}
	order["status"] = "return requested"
	order["return_items"] = returned
	order["return_payment_method_id"] = methodID
	return domains.Observe(order)
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

func userPaymentMethod(data worldstate.Document, order map[string]any, methodID string) (map[string]any, error) {
	userID, _ := worldstate.AsString(order["user_id"])
	user, ok, err := worldstate.Record(data, usersCollection, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errUserNotFound
	}
	methods, _ := worldstate.AsObject(user["payment_methods"])
	method, ok := worldstate.AsObject(methods[methodID])
	if !ok {
		return nil, errors.New("payment method not found")
	}
	return method, nil
}

func originalPaymentMethod(order map[string]any) string {
	history, _ := worldstate.AsArray(order["payment_history"])
	if len(history) == 0 {
		return ""
	}
	first, _ := worldstate.AsObject(history[0])
	id, _ := worldstate.AsString(first["payment_method_id"])
	return id
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
