package lightspeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/vapeshed/cis-bricks/httpclient"
)

// Version is the cursor pair Lightspeed returns with every list page.
type Version struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// Page is one list response.
type Page[T any] struct {
	Data    []T      `json:"data"`
	Version *Version `json:"version,omitempty"`
}

type single[T any] struct {
	Data T `json:"data"`
}

// Product is a catalogue item.
type Product struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	SKU               string     `json:"sku,omitempty"`
	Handle            string     `json:"handle,omitempty"`
	Active            bool       `json:"active"`
	PriceExcludingTax float64    `json:"price_excluding_tax,omitempty"`
	SupplierID        string     `json:"supplier_id,omitempty"`
	BrandID           string     `json:"brand_id,omitempty"`
	ProductTypeID     string     `json:"product_type_id,omitempty"`
	Version           int64      `json:"version,omitempty"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
}

// Sale is a register sale.
type Sale struct {
	ID            string     `json:"id"`
	OutletID      string     `json:"outlet_id"`
	RegisterID    string     `json:"register_id,omitempty"`
	CustomerID    string     `json:"customer_id,omitempty"`
	UserID        string     `json:"user_id,omitempty"`
	InvoiceNumber string     `json:"invoice_number,omitempty"`
	Status        string     `json:"status"`
	TotalPrice    float64    `json:"total_price"`
	TotalTax      float64    `json:"total_tax"`
	SaleDate      *time.Time `json:"sale_date,omitempty"`
	Version       int64      `json:"version,omitempty"`
}

// Customer is a loyalty or account customer.
type Customer struct {
	ID           string `json:"id"`
	CustomerCode string `json:"customer_code,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Version      int64  `json:"version,omitempty"`
}

// Consignment is a stock order, transfer or return.
type Consignment struct {
	ID             string     `json:"id"`
	Name           string     `json:"name,omitempty"`
	Type           string     `json:"type"`
	Status         string     `json:"status"`
	OutletID       string     `json:"outlet_id"`
	SourceOutletID string     `json:"source_outlet_id,omitempty"`
	SupplierID     string     `json:"supplier_id,omitempty"`
	Reference      string     `json:"reference,omitempty"`
	DueAt          *time.Time `json:"due_at,omitempty"`
	ReceivedAt     *time.Time `json:"received_at,omitempty"`
	Version        int64      `json:"version,omitempty"`
}

// InventoryLevel is the stock position of one product at one outlet.
type InventoryLevel struct {
	ID             string  `json:"id"`
	OutletID       string  `json:"outlet_id"`
	ProductID      string  `json:"product_id"`
	InventoryLevel float64 `json:"inventory_level"`
	ReorderPoint   float64 `json:"reorder_point"`
	ReorderAmount  float64 `json:"reorder_amount"`
	Version        int64   `json:"version,omitempty"`
}

// Outlet is a physical store.
type Outlet struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	TimeZone string `json:"time_zone,omitempty"`
	Email    string `json:"email,omitempty"`
	Version  int64  `json:"version,omitempty"`
}

// Supplier is a product vendor.
type Supplier struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     int64  `json:"version,omitempty"`
}

// User is a staff account.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	AccountType string `json:"account_type,omitempty"`
	Version     int64  `json:"version,omitempty"`
}

// Brand groups products by manufacturer.
type Brand struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version int64  `json:"version,omitempty"`
}

// ProductType is a product category.
type ProductType struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version int64  `json:"version,omitempty"`
}

func listPage[T any](ctx context.Context, c *Client, path string, query url.Values) (*Page[T], error) {
	resp, err := c.Get(ctx, path, query)
	if err != nil {
		return nil, err
	}
	return decode[Page[T]](resp, path)
}

func getOne[T any](ctx context.Context, c *Client, collection, id string) (*T, error) {
	path, err := entityPath(collection, id)
	if err != nil {
		return nil, err
	}
	resp, err := c.Get(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	return unwrap[T](resp, path)
}

func create[T any](ctx context.Context, c *Client, collection string, body any) (*T, error) {
	resp, err := c.Post(ctx, collection, body)
	if err != nil {
		return nil, err
	}
	return unwrap[T](resp, collection)
}

func update[T any](ctx context.Context, c *Client, collection, id string, body any) (*T, error) {
	path, err := entityPath(collection, id)
	if err != nil {
		return nil, err
	}
	resp, err := c.Put(ctx, path, body)
	if err != nil {
		return nil, err
	}
	return unwrap[T](resp, path)
}

func decode[T any](resp *httpclient.Response, path string) (*T, error) {
	var out T
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("lightspeed: decode %s response: %w", path, err)
	}
	return &out, nil
}

func unwrap[T any](resp *httpclient.Response, path string) (*T, error) {
	env, err := decode[single[T]](resp, path)
	if err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// ListProducts returns one page of products.
func (c *Client) ListProducts(ctx context.Context, query url.Values) (*Page[Product], error) {
	return listPage[Product](ctx, c, "products", query)
}

// GetProduct returns one product.
func (c *Client) GetProduct(ctx context.Context, id string) (*Product, error) {
	return getOne[Product](ctx, c, "products", id)
}

// CreateProduct creates a product from body.
func (c *Client) CreateProduct(ctx context.Context, body any) (*Product, error) {
	return create[Product](ctx, c, "products", body)
}

// UpdateProduct replaces product id with body.
func (c *Client) UpdateProduct(ctx context.Context, id string, body any) (*Product, error) {
	return update[Product](ctx, c, "products", id, body)
}

// DeleteProduct deletes product id.
func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	path, err := entityPath("products", id)
	if err != nil {
		return err
	}
	_, err = c.Delete(ctx, path)
	return err
}

// ListSales returns one page of sales.
func (c *Client) ListSales(ctx context.Context, query url.Values) (*Page[Sale], error) {
	return listPage[Sale](ctx, c, "sales", query)
}

// GetSale returns one sale.
func (c *Client) GetSale(ctx context.Context, id string) (*Sale, error) {
	return getOne[Sale](ctx, c, "sales", id)
}

// ListCustomers returns one page of customers.
func (c *Client) ListCustomers(ctx context.Context, query url.Values) (*Page[Customer], error) {
	return listPage[Customer](ctx, c, "customers", query)
}

// GetCustomer returns one customer.
func (c *Client) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	return getOne[Customer](ctx, c, "customers", id)
}

// CreateCustomer creates a customer from body.
func (c *Client) CreateCustomer(ctx context.Context, body any) (*Customer, error) {
	return create[Customer](ctx, c, "customers", body)
}

// UpdateCustomer replaces customer id with body.
func (c *Client) UpdateCustomer(ctx context.Context, id string, body any) (*Customer, error) {
	return update[Customer](ctx, c, "customers", id, body)
}

// ListConsignments returns one page of consignments.
func (c *Client) ListConsignments(ctx context.Context, query url.Values) (*Page[Consignment], error) {
	return listPage[Consignment](ctx, c, "consignments", query)
}

// GetConsignment returns one consignment.
func (c *Client) GetConsignment(ctx context.Context, id string) (*Consignment, error) {
	return getOne[Consignment](ctx, c, "consignments", id)
}

// CreateConsignment creates a consignment from body.
func (c *Client) CreateConsignment(ctx context.Context, body any) (*Consignment, error) {
	return create[Consignment](ctx, c, "consignments", body)
}

// UpdateConsignment replaces consignment id with body.
func (c *Client) UpdateConsignment(ctx context.Context, id string, body any) (*Consignment, error) {
	return update[Consignment](ctx, c, "consignments", id, body)
}

// ListInventory returns one page of inventory levels.
func (c *Client) ListInventory(ctx context.Context, query url.Values) (*Page[InventoryLevel], error) {
	return listPage[InventoryLevel](ctx, c, "inventory", query)
}

// ListOutlets returns the outlets.
func (c *Client) ListOutlets(ctx context.Context) (*Page[Outlet], error) {
	return listPage[Outlet](ctx, c, "outlets", nil)
}

// GetOutlet returns one outlet.
func (c *Client) GetOutlet(ctx context.Context, id string) (*Outlet, error) {
	return getOne[Outlet](ctx, c, "outlets", id)
}

// ListSuppliers returns the suppliers.
func (c *Client) ListSuppliers(ctx context.Context) (*Page[Supplier], error) {
	return listPage[Supplier](ctx, c, "suppliers", nil)
}

// GetSupplier returns one supplier.
func (c *Client) GetSupplier(ctx context.Context, id string) (*Supplier, error) {
	return getOne[Supplier](ctx, c, "suppliers", id)
}

// ListUsers returns the staff users.
func (c *Client) ListUsers(ctx context.Context) (*Page[User], error) {
	return listPage[User](ctx, c, "users", nil)
}

// ListBrands returns the brands.
func (c *Client) ListBrands(ctx context.Context) (*Page[Brand], error) {
	return listPage[Brand](ctx, c, "brands", nil)
}

// ListProductTypes returns the product types.
func (c *Client) ListProductTypes(ctx context.Context) (*Page[ProductType], error) {
	return listPage[ProductType](ctx, c, "product_types", nil)
}

// rawPage is the shape FetchPaginated walks.
type rawPage = Page[json.RawMessage]
