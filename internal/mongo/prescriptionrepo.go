package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/medqueue/pharmacy/internal/pharmacy"
)

type PrescriptionRepo struct {
	client     *mongo.Client
	db         *mongo.Database
	collection *mongo.Collection
	logger     apt.Logger
	config     *apt.Config
}

func NewPrescriptionRepo(config *apt.Config, logger apt.Logger) *PrescriptionRepo {
	return &PrescriptionRepo{
		logger: logger,
		config: config,
	}
}

func (r *PrescriptionRepo) Start(ctx context.Context) error {
	mongoURL, _ := r.config.GetString("db.mongo.url")
	if mongoURL == "" {
		mongoURL = "mongodb://localhost:27017"
	}

	dbName, _ := r.config.GetString("db.mongo.name")
	if dbName == "" {
		dbName = "medqueue"
	}

	clientOptions := options.Client().ApplyURI(mongoURL).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("cannot connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("cannot ping MongoDB: %w", err)
	}

	r.client = client
	r.db = client.Database(dbName)
	r.collection = r.db.Collection("prescriptions")

	idIndexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := r.collection.Indexes().CreateOne(ctx, idIndexModel); err != nil {
		return fmt.Errorf("cannot create id index: %w", err)
	}

	statusIndexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}},
	}
	if _, err := r.collection.Indexes().CreateOne(ctx, statusIndexModel); err != nil {
		return fmt.Errorf("cannot create status index: %w", err)
	}

	r.logger.Infof("Connected to MongoDB: %s, database: %s, collection: prescriptions", mongoURL, dbName)
	return nil
}

func (r *PrescriptionRepo) GetDatabase() *mongo.Database {
	return r.db
}

func (r *PrescriptionRepo) Stop(ctx context.Context) error {
	if r.client != nil {
		if err := r.client.Disconnect(ctx); err != nil {
			return fmt.Errorf("cannot disconnect from MongoDB: %w", err)
		}
		r.logger.Info("Disconnected from MongoDB")
	}
	return nil
}

func (r *PrescriptionRepo) Create(ctx context.Context, p *pharmacy.Prescription) error {
	_, err := r.collection.InsertOne(ctx, p)
	if err != nil {
		return fmt.Errorf("cannot insert prescription: %w", err)
	}
	return nil
}

func (r *PrescriptionRepo) Update(ctx context.Context, p *pharmacy.Prescription) error {
	filter := bson.M{"id": p.ID}
	update := bson.M{"$set": p}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("cannot update prescription: %w", err)
	}

	if result.MatchedCount == 0 {
		return fmt.Errorf("prescription not found")
	}

	return nil
}

func (r *PrescriptionRepo) FindByID(ctx context.Context, id int) (*pharmacy.Prescription, error) {
	var p pharmacy.Prescription
	err := r.collection.FindOne(ctx, bson.M{"id": id}).Decode(&p)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("prescription not found")
		}
		return nil, fmt.Errorf("cannot find prescription: %w", err)
	}
	return &p, nil
}

// List returns the worklist snapshot, pre-filtered server-side to records
// relevant to the pharmacy stage and ordered by queue token.
func (r *PrescriptionRepo) List(ctx context.Context, filter pharmacy.PrescriptionFilter) ([]pharmacy.Prescription, error) {
	query := bson.M{
		"$or": bson.A{
			bson.M{"prescription": bson.M{"$exists": true, "$ne": ""}},
			bson.M{"status": pharmacy.StageStatus},
			bson.M{"pharmacyState": bson.M{"$exists": true, "$ne": ""}},
		},
	}

	if filter.Status != nil {
		query["status"] = *filter.Status
	}

	if filter.PharmacyState != nil {
		query["pharmacyState"] = *filter.PharmacyState
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "token", Value: 1}})

	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot find prescriptions: %w", err)
	}
	defer cursor.Close(ctx)

	var prescriptions []pharmacy.Prescription
	if err := cursor.All(ctx, &prescriptions); err != nil {
		return nil, fmt.Errorf("cannot decode prescriptions: %w", err)
	}

	return prescriptions, nil
}
