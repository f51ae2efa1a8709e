package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/aadhaar-drishti/backend/internal/storage"
	"github.com/aadhaar-drishti/backend/internal/storage/models"
	"github.com/aadhaar-drishti/backend/pkg/logger"
)

const (
	districtsCollection = "districts"
	otpsCollection      = "otps"
)

type factCollection struct {
	name   string
	fields []string
}

// Collection and field names match the existing dashboard database so it can
// be read in place.
var factCollections = map[models.ImportKind]factCollection{
	models.KindBiometric:   {name: "biometricupdates", fields: []string{"bio_age_5_17", "bio_age_17_"}},
	models.KindDemographic: {name: "demographicupdates", fields: []string{"demo_age_5_17", "demo_age_17_"}},
	models.KindEnrolment:   {name: "enrolments", fields: []string{"age_0_5", "age_5_17", "age_18_greater"}},
}

type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ storage.Store = (*Client)(nil)

func NewClient(ctx context.Context, uri, database string) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	logger.Info("MongoDB client initialized", zap.String("database", database))

	return &Client{client: client, db: client.Database(database)}, nil
}

func (c *Client) Close() error {
	return c.client.Disconnect(context.Background())
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, nil)
}

func (c *Client) factColl(kind models.ImportKind) (*mongo.Collection, factCollection, error) {
	fc, ok := factCollections[kind]
	if !ok {
		return nil, fc, fmt.Errorf("unknown fact kind %q", kind)
	}
	return c.db.Collection(fc.name), fc, nil
}

func (c *Client) InitSchema(ctx context.Context) error {
	for kind := range factCollections {
		coll, _, _ := c.factColl(kind)
		_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "state", Value: 1}, {Key: "district", Value: 1}, {Key: "date", Value: -1}},
		})
		if err != nil {
			return fmt.Errorf("failed to index %s: %w", kind, err)
		}
	}

	_, err := c.db.Collection(districtsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "state", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "freshnessScore", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to index districts: %w", err)
	}

	_, err = c.db.Collection(otpsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "mobile", Value: 1}}},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to index otps: %w", err)
	}

	logger.Info("MongoDB indexes initialized")
	return nil
}

func (c *Client) InsertFacts(ctx context.Context, kind models.ImportKind, records []models.FactRecord) error {
	if len(records) == 0 {
		return nil
	}

	coll, fc, err := c.factColl(kind)
	if err != nil {
		return err
	}

	docs := make([]interface{}, 0, len(records))
	for _, r := range records {
		doc := bson.D{
			{Key: "date", Value: r.Date},
			{Key: "state", Value: r.State},
			{Key: "district", Value: r.District},
			{Key: "pincode", Value: r.Pincode},
		}
		var counters []int64
		if kind == models.KindEnrolment {
			counters = []int64{r.Age0To5, r.Age5To17, r.Age18Plus}
		} else {
			counters = []int64{r.Age5To17, r.Age17Plus}
		}
		for i, field := range fc.fields {
			doc = append(doc, bson.E{Key: field, Value: counters[i]})
		}
		docs = append(docs, doc)
	}

	_, err = coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("failed to insert %s records: %w", kind, err)
	}

	logger.Debug("Facts inserted", zap.String("kind", string(kind)), zap.Int("count", len(records)))
	return nil
}

func (c *Client) DeleteFacts(ctx context.Context, kind models.ImportKind) (int64, error) {
	coll, _, err := c.factColl(kind)
	if err != nil {
		return 0, err
	}

	res, err := coll.DeleteMany(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s facts: %w", kind, err)
	}
	return res.DeletedCount, nil
}

func (c *Client) Districts(ctx context.Context, kind models.ImportKind) ([]models.DistrictKey, error) {
	coll, _, err := c.factColl(kind)
	if err != nil {
		return nil, err
	}

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: bson.D{
			{Key: "state", Value: "$state"},
			{Key: "district", Value: "$district"},
		}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id.state", Value: 1}, {Key: "_id.district", Value: 1}}}},
	}

	cur, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to group %s districts: %w", kind, err)
	}

	var groups []struct {
		ID models.DistrictKey `bson:"_id"`
	}
	if err := cur.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("failed to decode %s districts: %w", kind, err)
	}

	keys := make([]models.DistrictKey, len(groups))
	for i, g := range groups {
		keys[i] = g.ID
	}
	return keys, nil
}

func (c *Client) Totals(ctx context.Context, kind models.ImportKind, key models.DistrictKey) (models.AgeTotals, error) {
	var totals models.AgeTotals

	coll, fc, err := c.factColl(kind)
	if err != nil {
		return totals, err
	}

	group := bson.D{{Key: "_id", Value: nil}}
	for i, field := range fc.fields {
		group = append(group, bson.E{Key: fmt.Sprintf("c%d", i), Value: bson.D{{Key: "$sum", Value: "$" + field}}})
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "state", Value: key.State}, {Key: "district", Value: key.District}}}},
		{{Key: "$group", Value: group}},
	}

	cur, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return totals, fmt.Errorf("failed to sum %s facts for %s: %w", kind, key, err)
	}

	var sums []struct {
		C0 int64 `bson:"c0"`
		C1 int64 `bson:"c1"`
		C2 int64 `bson:"c2"`
	}
	if err := cur.All(ctx, &sums); err != nil {
		return totals, fmt.Errorf("failed to decode %s totals: %w", kind, err)
	}
	if len(sums) == 0 {
		return totals, nil
	}

	if kind == models.KindEnrolment {
		totals.Age0To5, totals.Age5To17, totals.Age18Plus = sums[0].C0, sums[0].C1, sums[0].C2
	} else {
		totals.Age5To17, totals.Age17Plus = sums[0].C0, sums[0].C1
	}
	return totals, nil
}

func (c *Client) UpsertSummary(ctx context.Context, d *models.DistrictSummary) error {
	set := *d
	set.ID = ""

	filter := bson.D{{Key: "state", Value: d.State}, {Key: "name", Value: d.Name}}
	update := bson.D{
		{Key: "$set", Value: set},
		{Key: "$setOnInsert", Value: bson.D{{Key: "_id", Value: uuid.New().String()}}},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var saved models.DistrictSummary
	err := c.db.Collection(districtsCollection).FindOneAndUpdate(ctx, filter, update, opts).Decode(&saved)
	if err != nil {
		return fmt.Errorf("failed to upsert district %s/%s: %w", d.State, d.Name, err)
	}

	d.ID = saved.ID
	return nil
}

func (c *Client) ListSummaries(ctx context.Context, filter models.SummaryFilter) ([]models.DistrictSummary, error) {
	query := bson.D{}
	if filter.State != "" {
		query = append(query, bson.E{Key: "state", Value: filter.State})
	}
	if filter.RiskLevel != "" {
		query = append(query, bson.E{Key: "riskLevel", Value: string(filter.RiskLevel)})
	}

	opts := options.Find()
	switch filter.Sort {
	case models.SortByFreshnessAsc:
		opts.SetSort(bson.D{{Key: "freshnessScore", Value: 1}, {Key: "state", Value: 1}, {Key: "name", Value: 1}})
	default:
		opts.SetSort(bson.D{{Key: "state", Value: 1}, {Key: "name", Value: 1}})
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cur, err := c.db.Collection(districtsCollection).Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list districts: %w", err)
	}

	var out []models.DistrictSummary
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode districts: %w", err)
	}
	return out, nil
}

func (c *Client) CountSummaries(ctx context.Context) (int64, error) {
	n, err := c.db.Collection(districtsCollection).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("failed to count districts: %w", err)
	}
	return n, nil
}

func (c *Client) DistinctStates(ctx context.Context) ([]string, error) {
	values, err := c.db.Collection(districtsCollection).Distinct(ctx, "state", bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list states: %w", err)
	}

	states := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			states = append(states, s)
		}
	}
	sort.Strings(states)
	return states, nil
}

func (c *Client) ReplaceOTP(ctx context.Context, otp *models.OTPCredential) error {
	coll := c.db.Collection(otpsCollection)

	if _, err := coll.DeleteMany(ctx, bson.D{{Key: "mobile", Value: otp.Mobile}}); err != nil {
		return fmt.Errorf("failed to clear previous otps: %w", err)
	}

	if _, err := coll.InsertOne(ctx, otp); err != nil {
		return fmt.Errorf("failed to insert otp: %w", err)
	}
	return nil
}

func (c *Client) FindPendingOTP(ctx context.Context, mobile, last4Aadhaar string) (*models.OTPCredential, error) {
	filter := bson.D{
		{Key: "mobile", Value: mobile},
		{Key: "last4Aadhaar", Value: last4Aadhaar},
		{Key: "verified", Value: false},
	}

	var o models.OTPCredential
	err := c.db.Collection(otpsCollection).FindOne(ctx, filter).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get otp: %w", err)
	}
	return &o, nil
}

func (c *Client) MarkOTPVerified(ctx context.Context, otp *models.OTPCredential) error {
	res, err := c.db.Collection(otpsCollection).UpdateByID(ctx, otp.ID,
		bson.D{{Key: "$set", Value: bson.D{{Key: "verified", Value: true}}}})
	if err != nil {
		return fmt.Errorf("failed to mark otp verified: %w", err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}

	otp.Verified = true
	return nil
}

func (c *Client) DeleteOTP(ctx context.Context, otp *models.OTPCredential) error {
	_, err := c.db.Collection(otpsCollection).DeleteOne(ctx, bson.D{{Key: "_id", Value: otp.ID}})
	if err != nil {
		return fmt.Errorf("failed to delete otp: %w", err)
	}
	return nil
}
