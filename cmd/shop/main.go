package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"storefront-core/internal/app"
	"storefront-core/internal/auth"
	"storefront-core/internal/cart"
	"storefront-core/internal/checkout"
	"storefront-core/internal/config"
	"storefront-core/internal/logger"
	"storefront-core/internal/storefront"

	"go.uber.org/zap"
)

const usage = `usage: shop <command> [flags]

commands:
  add      -product <id|file.json> [-query text] [-volume 750ml]
  remove   -product <id|file.json> [-query text] [-volume 750ml]
  search   [-query text] [-type text|category|exclusive|trending] [-category id]
           [-subcategory id] [-featured] [-min n] [-max n] [-sort nameAsc,priceHigh]
           [-page n] [-size n]
  categories
  show
  clear
  checkout -address id [-payment cash|fonepay] [-user id]
  confirm  -order id -uid UID -prn PRN [-bid BID] -address id [-user id]
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	ctx, _ := logger.EnsureRequestID(context.Background())

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.L().Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	if err := dispatch(ctx, a, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		a.Close()
		logger.L().Fatal("command failed", zap.String("command", os.Args[1]), zap.Error(err))
	}
}

func dispatch(ctx context.Context, a *app.App, command string, args []string, out io.Writer) error {
	switch command {
	case "search":
		return search(ctx, a, args, out)
	case "categories":
		api, err := a.API()
		if err != nil {
			return err
		}
		cats, err := api.Categories(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, cats)
	}

	c, err := a.Cart(ctx)
	if err != nil {
		return err
	}

	switch command {
	case "add", "remove":
		return mutate(ctx, a, c, command, args, out)
	case "show":
		return printJSON(out, c.State())
	case "clear":
		return printJSON(out, c.Reset(ctx))
	case "checkout", "confirm":
		return placeOrder(ctx, a, c, command, args, out)
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}

func mutate(ctx context.Context, a *app.App, c cart.Service, command string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	product := fs.String("product", "", "product id, or a catalog product JSON file")
	query := fs.String("query", "", "search text narrowing the product id lookup")
	volume := fs.String("volume", "", "volume to add or remove (default volume when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	candidate, err := resolveCandidate(ctx, a, *product, *query)
	if err != nil {
		return err
	}

	var state cart.State
	if command == "add" {
		state, err = c.AddItem(ctx, candidate, *volume)
	} else {
		state, err = c.RemoveItem(ctx, candidate, *volume)
	}
	if err != nil {
		return err
	}
	return printJSON(out, state)
}

func placeOrder(ctx context.Context, a *app.App, c cart.Service, command string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	userID := fs.String("user", "", "customer id (defaults to the access token's user)")
	address := fs.String("address", "", "delivery address id")
	payment := fs.String("payment", "cash", "payment type: cash or fonepay")
	orderID := fs.String("order", "", "pending order id (confirm)")
	uid := fs.String("uid", "", "gateway UID (confirm)")
	prn := fs.String("prn", "", "gateway PRN (confirm)")
	bid := fs.String("bid", "", "gateway BID (confirm)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *userID == "" {
		access, err := a.Session.AccessToken(ctx)
		if err != nil {
			return err
		}
		claims, err := auth.ParseClaims(access)
		if err != nil {
			return fmt.Errorf("no -user and no usable access token: %w", err)
		}
		if claims.Expired(time.Now(), 0) {
			return errors.New("access token expired; sign in again")
		}
		*userID = claims.UserID
	}

	api, err := a.API()
	if err != nil {
		return err
	}
	svc := checkout.NewService(c, api)
	input := checkout.PlaceOrderInput{UserID: *userID, DeliveryAddressID: *address, PaymentType: *payment}

	if command == "confirm" {
		input.PaymentType = storefront.PaymentFonepay
		pending := &checkout.Result{OrderID: *orderID}
		if err := svc.ConfirmPayment(ctx, pending, input, checkout.Confirmation{UID: *uid, PRN: *prn, BID: *bid}); err != nil {
			return err
		}
		return printJSON(out, pending)
	}

	res, err := svc.PlaceOrder(ctx, input)
	if err != nil {
		return err
	}
	return printJSON(out, res)
}

func search(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	query := fs.String("query", "", "search text")
	searchType := fs.String("type", storefront.SearchText, "search type")
	category := fs.String("category", "", "category id")
	subCategory := fs.String("subcategory", "", "subcategory id")
	featured := fs.Bool("featured", false, "featured products only")
	minPrice := fs.Float64("min", -1, "minimum price")
	maxPrice := fs.Float64("max", -1, "maximum price")
	sortIDs := fs.String("sort", "", "comma separated: nameAsc, nameDesc, priceLow, priceHigh")
	page := fs.Int("page", 1, "page number")
	size := fs.Int("size", 10, "page size")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sort, err := storefront.ParseSort(strings.Split(*sortIDs, ",")...)
	if err != nil {
		return err
	}

	filters := storefront.SearchFilters{Category: *category, SubCategory: *subCategory, IsFeatured: *featured}
	if *minPrice >= 0 {
		filters.MinPrice = minPrice
	}
	if *maxPrice >= 0 {
		filters.MaxPrice = maxPrice
	}
	params := storefront.SearchParams{
		SearchType: *searchType,
		Page:       *page,
		PageSize:   *size,
		Query:      *query,
		Sort:       sort,
	}
	if filters != (storefront.SearchFilters{}) {
		params.Filters = &filters
	}

	api, err := a.API()
	if err != nil {
		return err
	}
	res, err := api.SearchProducts(ctx, params)
	if err != nil {
		return err
	}
	return printJSON(out, res)
}

// resolveCandidate reads a product JSON file when product names one, and
// otherwise looks the id up in the catalog.
func resolveCandidate(ctx context.Context, a *app.App, product, query string) (cart.Candidate, error) {
	if product == "" {
		return cart.Candidate{}, errors.New("-product is required")
	}

	if data, err := os.ReadFile(product); err == nil {
		var p storefront.Product
		if err := json.Unmarshal(data, &p); err != nil {
			return cart.Candidate{}, fmt.Errorf("decode %s: %w", product, err)
		}
		return p.Candidate(), nil
	} else if strings.HasSuffix(product, ".json") {
		return cart.Candidate{}, err
	}

	api, err := a.API()
	if err != nil {
		return cart.Candidate{}, err
	}
	p, err := api.FindProduct(ctx, product, storefront.SearchParams{Query: query})
	if err != nil {
		return cart.Candidate{}, err
	}
	return p.Candidate(), nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
