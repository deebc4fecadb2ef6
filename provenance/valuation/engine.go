package valuation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/graph"
	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/link"
	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/log"
)

const tracerName = "provenance/valuation"

// Engine is the valuation service. It stores no running balances: remaining
// quantity and value are always derived from the link graph's consumed_by
// edges against each lot.
type Engine struct {
	graph  *graph.Store
	lots   LotRepository
	logger log.Logger
	tracer trace.Tracer

	standardsMu sync.RWMutex
	standards   map[string]decimal.Decimal
}

// EngineOption configures optional Engine collaborators.
type EngineOption func(*Engine)

// WithLogger sets the structured logger used by the engine.
func WithLogger(logger log.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTracer sets the tracer used to instrument engine operations.
func WithTracer(tracer trace.Tracer) EngineOption {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// NewEngine creates a valuation engine over the given graph store and lot
// repository.
func NewEngine(graphStore *graph.Store, lots LotRepository, opts ...EngineOption) (*Engine, error) {
	if graphStore == nil {
		return nil, errors.New("graph store is required")
	}

	if lots == nil {
		return nil, errors.New("lot repository is required")
	}

	engine := &Engine{
		graph:     graphStore,
		lots:      lots,
		logger:    log.NewNop(),
		tracer:    otel.Tracer(tracerName),
		standards: make(map[string]decimal.Decimal),
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine, nil
}

// CreateLot validates the input, persists an immutable cost lot, and records
// a sourced_from edge from the source artifact to the lot for audit.
func (e *Engine) CreateLot(ctx context.Context, in LotInput) (CostLot, error) {
	ctx, span := e.tracer.Start(ctx, "valuation.create_lot", trace.WithAttributes(
		attribute.String("lot.item_id", in.ItemID),
	))
	defer span.End()

	if err := in.validate(); err != nil {
		return CostLot{}, err
	}

	lot := CostLot{
		ID:        uuid.New(),
		ItemID:    in.ItemID,
		Location:  in.Location,
		LotDate:   in.LotDate,
		Quantity:  in.Quantity,
		TotalCost: in.TotalCost,
		Currency:  in.Currency,
		Method:    in.Method,
		Source:    in.Source,
		CreatedAt: time.Now().UTC(),
	}

	if err := e.lots.Insert(ctx, lot); err != nil {
		return CostLot{}, fmt.Errorf("insert cost lot: %w", err)
	}

	sourced, err := link.NewEconomicLink(link.LinkSourcedFrom, in.Source, lot.Ref(), in.EventID, nil)
	if err != nil {
		return CostLot{}, err
	}

	if _, err := e.graph.Establish(ctx, sourced, false); err != nil {
		return CostLot{}, fmt.Errorf("record lot provenance: %w", err)
	}

	e.logger.Log(ctx, log.LevelInfo, "cost lot created",
		log.String("lot_id", lot.ID.String()),
		log.String("item_id", lot.ItemID),
		log.Decimal("quantity", lot.Quantity),
		log.Decimal("total_cost", lot.TotalCost),
	)

	return lot, nil
}

// GetLot returns the lot with the given id.
func (e *Engine) GetLot(ctx context.Context, id uuid.UUID) (CostLot, error) {
	lot, err := e.lots.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrLotNotFound) {
			return CostLot{}, LotNotFoundError{LotID: id}
		}

		return CostLot{}, fmt.Errorf("get cost lot: %w", err)
	}

	return lot, nil
}

// AvailableLayers filters lots by item, location, and date, derives each
// lot's remaining value from its consumed_by edges, and returns only layers
// with remaining quantity greater than zero, ordered by lot date ascending.
func (e *Engine) AvailableLayers(ctx context.Context, itemID string, filter LotFilter) ([]CostLayer, error) {
	ctx, span := e.tracer.Start(ctx, "valuation.available_layers", trace.WithAttributes(
		attribute.String("lot.item_id", itemID),
	))
	defer span.End()

	if strings.TrimSpace(itemID) == "" {
		return nil, link.NewDomainError(link.ErrorInvalidPayload, "itemId", "item id is required")
	}

	lots, err := e.lots.ListByItem(ctx, itemID, filter)
	if err != nil {
		return nil, fmt.Errorf("list cost lots: %w", err)
	}

	layers := make([]CostLayer, 0, len(lots))

	for _, lot := range lots {
		layer, err := e.layerFor(ctx, lot)
		if err != nil {
			return nil, err
		}

		if layer.RemainingQuantity.IsPositive() {
			layers = append(layers, layer)
		}
	}

	return layers, nil
}

// layerFor derives the lot's remaining value over consumed_by edges and
// converts it back to remaining quantity via the lot's fixed unit cost. A
// zero-cost lot falls back to summing consumed quantities directly, since its
// value carries no information about quantity.
func (e *Engine) layerFor(ctx context.Context, lot CostLot) (CostLayer, error) {
	unitCost := lot.UnitCost()

	if unitCost.IsZero() {
		summary, err := e.graph.UnconsumedValue(ctx, lot.Ref(), lot.Quantity, link.ValueQuantity, link.LinkConsumedBy)
		if err != nil {
			return CostLayer{}, fmt.Errorf("derive remaining quantity of lot %s: %w", lot.ID, err)
		}

		return CostLayer{Lot: lot, RemainingQuantity: summary.Remaining, RemainingValue: decimal.Zero}, nil
	}

	summary, err := e.graph.UnconsumedValue(ctx, lot.Ref(), lot.TotalCost, link.ValueCostConsumed, link.LinkConsumedBy)
	if err != nil {
		return CostLayer{}, fmt.Errorf("derive remaining value of lot %s: %w", lot.ID, err)
	}

	return CostLayer{
		Lot:               lot,
		RemainingQuantity: summary.Remaining.Div(unitCost),
		RemainingValue:    summary.Remaining,
	}, nil
}

// TotalAvailableQuantity sums remaining quantity across available layers.
func (e *Engine) TotalAvailableQuantity(ctx context.Context, itemID string, filter LotFilter) (decimal.Decimal, error) {
	layers, err := e.AvailableLayers(ctx, itemID, filter)
	if err != nil {
		return decimal.Decimal{}, err
	}

	total := decimal.Zero
	for _, layer := range layers {
		total = total.Add(layer.RemainingQuantity)
	}

	return total, nil
}

// TotalAvailableValue sums remaining value across available layers.
func (e *Engine) TotalAvailableValue(ctx context.Context, itemID string, filter LotFilter) (decimal.Decimal, error) {
	layers, err := e.AvailableLayers(ctx, itemID, filter)
	if err != nil {
		return decimal.Decimal{}, err
	}

	total := decimal.Zero
	for _, layer := range layers {
		total = total.Add(layer.RemainingValue)
	}

	return total, nil
}

// ConsumeInput describes a consumption request against an item's lots.
type ConsumeInput struct {
	ItemID   string
	Quantity decimal.Decimal
	// Consumer is the artifact drawing the value; one consumed_by edge is
	// recorded from each touched lot to it.
	Consumer link.ArtifactRef
	// EventID is the business event causing the consumption.
	EventID uuid.UUID
	Filter  LotFilter
}

func (in ConsumeInput) validate() error {
	if strings.TrimSpace(in.ItemID) == "" {
		return link.NewDomainError(link.ErrorInvalidPayload, "itemId", "item id is required")
	}

	if !in.Quantity.IsPositive() {
		return link.NewDomainError(link.ErrorInvalidPayload, "quantity", "quantity must be greater than zero")
	}

	if err := in.Consumer.Validate(); err != nil {
		return err
	}

	if in.EventID == uuid.Nil {
		return link.NewDomainError(link.ErrorMissingProvenance, "eventId", "creating event id is required")
	}

	return nil
}

// CostLayerConsumption records the draw against one lot.
type CostLayerConsumption struct {
	LotID    uuid.UUID
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
	Cost     decimal.Decimal
}

// ConsumptionResult bundles the per-lot draws of one consumption.
type ConsumptionResult struct {
	Method       CostingMethod
	Consumptions []CostLayerConsumption
	TotalCost    decimal.Decimal
}

// ConsumeFIFO draws the requested quantity from the oldest lots first.
func (e *Engine) ConsumeFIFO(ctx context.Context, in ConsumeInput) (ConsumptionResult, error) {
	return e.consumeOrdered(ctx, in, MethodFIFO)
}

// ConsumeLIFO draws the requested quantity from the newest lots first.
func (e *Engine) ConsumeLIFO(ctx context.Context, in ConsumeInput) (ConsumptionResult, error) {
	return e.consumeOrdered(ctx, in, MethodLIFO)
}

func (e *Engine) consumeOrdered(ctx context.Context, in ConsumeInput, method CostingMethod) (ConsumptionResult, error) {
	ctx, span := e.tracer.Start(ctx, "valuation.consume", trace.WithAttributes(
		attribute.String("consume.method", string(method)),
		attribute.String("lot.item_id", in.ItemID),
	))
	defer span.End()

	if err := in.validate(); err != nil {
		return ConsumptionResult{}, err
	}

	layers, err := e.AvailableLayers(ctx, in.ItemID, in.Filter)
	if err != nil {
		return ConsumptionResult{}, err
	}

	if method == MethodLIFO {
		sort.SliceStable(layers, func(i, j int) bool {
			if !layers[i].Lot.LotDate.Equal(layers[j].Lot.LotDate) {
				return layers[i].Lot.LotDate.After(layers[j].Lot.LotDate)
			}

			return layers[i].Lot.CreatedAt.After(layers[j].Lot.CreatedAt)
		})
	}

	available := decimal.Zero
	for _, layer := range layers {
		available = available.Add(layer.RemainingQuantity)
	}

	if available.LessThan(in.Quantity) {
		return ConsumptionResult{}, InsufficientInventoryError{
			ItemID:    in.ItemID,
			Requested: in.Quantity,
			Available: available,
		}
	}

	return e.drawFromLayers(ctx, in, method, layers)
}

// drawFromLayers greedily consumes from the front of the sorted layer list,
// producing one consumption and one consumed_by edge per touched lot.
// Sufficiency has already been checked: the loop cannot run out of layers.
func (e *Engine) drawFromLayers(ctx context.Context, in ConsumeInput, method CostingMethod, layers []CostLayer) (ConsumptionResult, error) {
	result := ConsumptionResult{Method: method, TotalCost: decimal.Zero}
	remaining := in.Quantity

	for _, layer := range layers {
		if !remaining.IsPositive() {
			break
		}

		draw := decimal.Min(remaining, layer.RemainingQuantity)
		unitCost := layer.Lot.UnitCost()
		cost := draw.Mul(unitCost)

		consumption := link.Consumption{
			Quantity:     draw,
			UnitCost:     unitCost,
			CostConsumed: cost,
		}

		consumedBy, err := link.NewEconomicLink(link.LinkConsumedBy, layer.Lot.Ref(), in.Consumer, in.EventID, consumption)
		if err != nil {
			return ConsumptionResult{}, err
		}

		if _, err := e.graph.Establish(ctx, consumedBy, false); err != nil {
			return ConsumptionResult{}, fmt.Errorf("record consumption of lot %s: %w", layer.Lot.ID, err)
		}

		result.Consumptions = append(result.Consumptions, CostLayerConsumption{
			LotID:    layer.Lot.ID,
			Quantity: draw,
			UnitCost: unitCost,
			Cost:     cost,
		})
		result.TotalCost = result.TotalCost.Add(cost)
		remaining = remaining.Sub(draw)
	}

	e.logger.Log(ctx, log.LevelInfo, "inventory consumed",
		log.String("method", string(method)),
		log.String("item_id", in.ItemID),
		log.Decimal("quantity", in.Quantity),
		log.Decimal("total_cost", result.TotalCost),
		log.Int("lots_touched", len(result.Consumptions)),
	)

	return result, nil
}

// ConsumeSpecific draws the requested quantity from exactly one named lot.
// It distinguishes a missing lot, a depleted lot, and an insufficient lot as
// three distinct error kinds.
func (e *Engine) ConsumeSpecific(ctx context.Context, lotID uuid.UUID, quantity decimal.Decimal, consumer link.ArtifactRef, eventID uuid.UUID) (ConsumptionResult, error) {
	ctx, span := e.tracer.Start(ctx, "valuation.consume_specific", trace.WithAttributes(
		attribute.String("lot.id", lotID.String()),
	))
	defer span.End()

	if !quantity.IsPositive() {
		return ConsumptionResult{}, link.NewDomainError(link.ErrorInvalidPayload, "quantity", "quantity must be greater than zero")
	}

	if err := consumer.Validate(); err != nil {
		return ConsumptionResult{}, err
	}

	if eventID == uuid.Nil {
		return ConsumptionResult{}, link.NewDomainError(link.ErrorMissingProvenance, "eventId", "creating event id is required")
	}

	lot, err := e.GetLot(ctx, lotID)
	if err != nil {
		return ConsumptionResult{}, err
	}

	layer, err := e.layerFor(ctx, lot)
	if err != nil {
		return ConsumptionResult{}, err
	}

	if !layer.RemainingQuantity.IsPositive() {
		return ConsumptionResult{}, LotDepletedError{LotID: lotID}
	}

	if layer.RemainingQuantity.LessThan(quantity) {
		return ConsumptionResult{}, LotInsufficientError{
			LotID:     lotID,
			Requested: quantity,
			Remaining: layer.RemainingQuantity,
		}
	}

	in := ConsumeInput{ItemID: lot.ItemID, Quantity: quantity, Consumer: consumer, EventID: eventID}

	return e.drawFromLayers(ctx, in, MethodSpecific, []CostLayer{layer})
}

// StandardConsumption bundles an actual FIFO consumption with its standard
// cost and variance. Variance is standard minus actual; positive is
// favorable.
type StandardConsumption struct {
	Actual       ConsumptionResult
	StandardCost decimal.Decimal
	Variance     decimal.Decimal
}

// ConsumeAtStandard consumes via FIFO to discover actual cost, prices the
// draw at the registered per-unit standard cost, and reports the variance.
func (e *Engine) ConsumeAtStandard(ctx context.Context, in ConsumeInput) (StandardConsumption, error) {
	ctx, span := e.tracer.Start(ctx, "valuation.consume_at_standard", trace.WithAttributes(
		attribute.String("lot.item_id", in.ItemID),
	))
	defer span.End()

	standard, ok := e.lookupStandard(in.ItemID)
	if !ok {
		return StandardConsumption{}, StandardCostNotFoundError{ItemID: in.ItemID}
	}

	actual, err := e.consumeOrdered(ctx, in, MethodFIFO)
	if err != nil {
		return StandardConsumption{}, err
	}

	actual.Method = MethodStandard
	standardCost := standard.Mul(in.Quantity)

	return StandardConsumption{
		Actual:       actual,
		StandardCost: standardCost,
		Variance:     standardCost.Sub(actual.TotalCost),
	}, nil
}

// SetStandardCost registers the per-unit standard cost for an item.
func (e *Engine) SetStandardCost(itemID string, unitCost decimal.Decimal) error {
	if strings.TrimSpace(itemID) == "" {
		return link.NewDomainError(link.ErrorInvalidPayload, "itemId", "item id is required")
	}

	if unitCost.IsNegative() {
		return link.NewDomainError(link.ErrorInvalidPayload, "unitCost", "standard cost cannot be negative")
	}

	e.standardsMu.Lock()
	defer e.standardsMu.Unlock()

	e.standards[itemID] = unitCost

	return nil
}

// StandardCost returns the registered per-unit standard cost for an item.
func (e *Engine) StandardCost(itemID string) (decimal.Decimal, error) {
	standard, ok := e.lookupStandard(itemID)
	if !ok {
		return decimal.Decimal{}, StandardCostNotFoundError{ItemID: itemID}
	}

	return standard, nil
}

func (e *Engine) lookupStandard(itemID string) (decimal.Decimal, bool) {
	e.standardsMu.RLock()
	defer e.standardsMu.RUnlock()

	standard, ok := e.standards[itemID]

	return standard, ok
}
