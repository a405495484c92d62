package httpsvc

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/service/catalog"
)

// Денежные суммы отдаются строкой с двумя знаками после запятой.
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token     string    `json:"token"`
	Type      string    `json:"type"`
	ExpiresAt time.Time `json:"expiresAt"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email, Role: string(u.Role), CreatedAt: u.CreatedAt}
}

type productRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	ImageURL    string          `json:"imageUrl"`
	Stock       int             `json:"stock"`
	Featured    bool            `json:"featured"`
}

func (r productRequest) input() catalog.ProductInput {
	return catalog.ProductInput{
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Category:    r.Category,
		ImageURL:    r.ImageURL,
		Stock:       r.Stock,
		Featured:    r.Featured,
	}
}

type productResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       string    `json:"price"`
	Category    string    `json:"category"`
	ImageURL    string    `json:"imageUrl"`
	Stock       int       `json:"stock"`
	Rating      string    `json:"rating"`
	ReviewCount int       `json:"reviewCount"`
	Featured    bool      `json:"featured"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       money(p.Price),
		Category:    p.Category,
		ImageURL:    p.ImageURL,
		Stock:       p.Stock,
		Rating:      p.Rating.StringFixed(1),
		ReviewCount: p.ReviewCount,
		Featured:    p.Featured,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toProductList(products []domain.Product) []productResponse {
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	return out
}

type productPageResponse struct {
	Content       []productResponse `json:"content"`
	Page          int               `json:"page"`
	Size          int               `json:"size"`
	TotalElements int               `json:"totalElements"`
	TotalPages    int               `json:"totalPages"`
}

func toProductPage(page domain.ProductPage) productPageResponse {
	return productPageResponse{
		Content:       toProductList(page.Items),
		Page:          page.Page,
		Size:          page.Size,
		TotalElements: page.TotalItems,
		TotalPages:    page.TotalPages,
	}
}

type reviewRequest struct {
	ProductID string `json:"productId"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

type reviewResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	ProductID string    `json:"productId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toReviewResponse(r domain.Review) reviewResponse {
	return reviewResponse{
		ID:        r.ID,
		UserID:    r.UserID,
		UserName:  r.UserName,
		ProductID: r.ProductID,
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type orderItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type orderRequest struct {
	Items           []orderItemRequest `json:"items"`
	DeliveryAddress string             `json:"deliveryAddress"`
	DeliveryCity    string             `json:"deliveryCity"`
	DeliveryZip     string             `json:"deliveryZip"`
	DeliveryPhone   string             `json:"deliveryPhone"`
	DeliveryNotes   string             `json:"deliveryNotes"`
}

func (r orderRequest) cart() domain.Cart {
	lines := make([]domain.CartLine, 0, len(r.Items))
	for _, item := range r.Items {
		lines = append(lines, domain.CartLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return domain.Cart{
		Lines: lines,
		Delivery: domain.Delivery{
			Address: r.DeliveryAddress,
			City:    r.DeliveryCity,
			Zip:     r.DeliveryZip,
			Phone:   r.DeliveryPhone,
			Notes:   r.DeliveryNotes,
		},
	}
}

type orderItemResponse struct {
	ID          string `json:"id"`
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	Subtotal    string `json:"subtotal"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	UserID          string              `json:"userId"`
	TotalPrice      string              `json:"totalPrice"`
	Status          string              `json:"status"`
	DeliveryAddress string              `json:"deliveryAddress"`
	DeliveryCity    string              `json:"deliveryCity"`
	DeliveryZip     string              `json:"deliveryZip"`
	DeliveryPhone   string              `json:"deliveryPhone"`
	DeliveryNotes   string              `json:"deliveryNotes,omitempty"`
	Items           []orderItemResponse `json:"items"`
	Version         int64               `json:"version"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

func toOrderResponse(o domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   money(item.UnitPrice),
			Subtotal:    money(item.Subtotal()),
		})
	}
	return orderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		TotalPrice:      money(o.TotalPrice),
		Status:          string(o.Status),
		DeliveryAddress: o.Delivery.Address,
		DeliveryCity:    o.Delivery.City,
		DeliveryZip:     o.Delivery.Zip,
		DeliveryPhone:   o.Delivery.Phone,
		DeliveryNotes:   o.Delivery.Notes,
		Items:           items,
		Version:         o.Version,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func toOrderList(orders []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

type timelineEventResponse struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason"`
	Occurred time.Time `json:"occurred"`
}

type statsResponse struct {
	TotalOrders    int               `json:"totalOrders"`
	TotalRevenue   string            `json:"totalRevenue"`
	TotalUsers     int               `json:"totalUsers"`
	TotalProducts  int               `json:"totalProducts"`
	PendingOrders  int               `json:"pendingOrders"`
	OrdersByStatus map[string]int    `json:"ordersByStatus"`
	SalesByDate    map[string]string `json:"salesByDate"`
	Since          time.Time         `json:"since"`
}

func toStatsResponse(s domain.DashboardStats) statsResponse {
	byStatus := make(map[string]int, len(s.ByStatus))
	for status, n := range s.ByStatus {
		byStatus[string(status)] = n
	}
	sales := make(map[string]string, len(s.SalesByDate))
	for _, day := range s.SalesByDate {
		sales[day.Date] = money(day.Revenue)
	}
	return statsResponse{
		TotalOrders:    s.TotalOrders,
		TotalRevenue:   money(s.Revenue),
		TotalUsers:     s.TotalUsers,
		TotalProducts:  s.TotalProducts,
		PendingOrders:  s.PendingOrders,
		OrdersByStatus: byStatus,
		SalesByDate:    sales,
		Since:          s.Since,
	}
}
