package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rongwang/assetverse-server/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names
const (
	CollUsers         = "users"
	CollPackages      = "packages"
	CollAssets        = "assets"
	CollRequests      = "requests"
	CollAffiliations  = "employeeAffiliations"
	CollAssignedAsset = "assignedAssets"
	CollPayments      = "payments"
)

// MongoRepository implements the Repository interface on a MongoDB replica set.
// Transactions require a replica set or sharded cluster.
type MongoRepository struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoRepository wraps a connected client. The client should be built with NewMongoRegistry.
func NewMongoRepository(client *mongo.Client, database string) *MongoRepository {
	return &MongoRepository{
		client: client,
		db:     client.Database(database),
	}
}

func (r *MongoRepository) coll(name string) *mongo.Collection {
	return r.db.Collection(name)
}

// Database exposes the underlying database handle (tests use it for cleanup)
func (r *MongoRepository) Database() *mongo.Database {
	return r.db
}

func (r *MongoRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// EnsureIndexes creates the uniqueness and lookup indexes the workflows rely on
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	specs := map[string][]mongo.IndexModel{
		CollUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetName("uniq_email").SetUnique(true)},
		},
		CollAssets: {
			{Keys: bson.D{{Key: "hrEmail", Value: 1}}, Options: options.Index().SetName("idx_hrEmail")},
		},
		CollRequests: {
			{Keys: bson.D{{Key: "hrEmail", Value: 1}, {Key: "requestStatus", Value: 1}}, Options: options.Index().SetName("idx_hrEmail_status")},
			{Keys: bson.D{{Key: "requesterEmail", Value: 1}}, Options: options.Index().SetName("idx_requesterEmail")},
		},
		CollAffiliations: {
			{
				Keys: bson.D{{Key: "employeeEmail", Value: 1}, {Key: "hrEmail", Value: 1}, {Key: "companyName", Value: 1}},
				Options: options.Index().
					SetName("uniq_active_employee_hr_company").
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"status": models.AffiliationActive}),
			},
			{Keys: bson.D{{Key: "hrEmail", Value: 1}, {Key: "status", Value: 1}}, Options: options.Index().SetName("idx_hrEmail_status")},
		},
		CollAssignedAsset: {
			{Keys: bson.D{{Key: "employeeEmail", Value: 1}}, Options: options.Index().SetName("idx_employeeEmail")},
		},
		CollPayments: {
			{Keys: bson.D{{Key: "transactionId", Value: 1}}, Options: options.Index().SetName("uniq_transactionId").SetUnique(true)},
			{Keys: bson.D{{Key: "trackingId", Value: 1}}, Options: options.Index().SetName("uniq_trackingId").SetUnique(true)},
		},
	}

	for name, idx := range specs {
		if _, err := r.coll(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

func translateMongoError(err error) error {
	if err != nil && mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter interface{}) (*T, error) {
	var out T
	if err := coll.FindOne(ctx, filter).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter interface{}, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []T{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func aggregate[T any](ctx context.Context, coll *mongo.Collection, pipeline mongo.Pipeline) ([]T, error) {
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []T{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func containsRegex(s string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(s), "$options": "i"}
}

func pageOptions(limit, skip int) *options.FindOptions {
	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	if skip > 0 {
		opts.SetSkip(int64(skip))
	}
	return opts
}

// User operations
func (r *MongoRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.coll(CollUsers).InsertOne(ctx, user)
	return translateMongoError(err)
}

func (r *MongoRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return findOne[models.User](ctx, r.coll(CollUsers), bson.M{"email": email})
}

// Package operations
func (r *MongoRepository) CreatePackage(ctx context.Context, pkg *models.Package) error {
	if pkg.ID == "" {
		pkg.ID = uuid.New().String()
	}
	_, err := r.coll(CollPackages).InsertOne(ctx, pkg)
	return translateMongoError(err)
}

func (r *MongoRepository) ListPackages(ctx context.Context) ([]models.Package, error) {
	return findAll[models.Package](ctx, r.coll(CollPackages), bson.M{},
		options.Find().SetSort(bson.D{{Key: "employeeLimit", Value: 1}}))
}

func (r *MongoRepository) GetPackage(ctx context.Context, id string) (*models.Package, error) {
	return findOne[models.Package](ctx, r.coll(CollPackages), bson.M{"_id": id})
}

// Asset operations
func (r *MongoRepository) CreateAsset(ctx context.Context, asset *models.Asset) error {
	if asset.ID == "" {
		asset.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	asset.CreatedAt = now
	asset.UpdatedAt = now

	_, err := r.coll(CollAssets).InsertOne(ctx, asset)
	return translateMongoError(err)
}

func (r *MongoRepository) GetAsset(ctx context.Context, id string) (*models.Asset, error) {
	return findOne[models.Asset](ctx, r.coll(CollAssets), bson.M{"_id": id})
}

func (r *MongoRepository) ListAssets(ctx context.Context, filter models.AssetFilter) ([]models.Asset, error) {
	query := bson.M{}
	if filter.HREmail != "" {
		query["hrEmail"] = filter.HREmail
	}
	if filter.ID != "" {
		query["_id"] = filter.ID
	}
	if filter.Search != "" {
		query["productName"] = containsRegex(filter.Search)
	}
	if filter.ProductType != "" {
		query["productType"] = filter.ProductType
	}
	if filter.AvailableOnly {
		query["availableQuantity"] = bson.M{"$gt": 0}
	}

	opts := pageOptions(filter.Limit, filter.Skip).SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return findAll[models.Asset](ctx, r.coll(CollAssets), query, opts)
}

func (r *MongoRepository) UpdateAsset(ctx context.Context, id string, patch models.AssetPatch) error {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if patch.ProductName != nil {
		set["productName"] = *patch.ProductName
	}
	if patch.ProductType != nil {
		set["productType"] = *patch.ProductType
	}
	if patch.ProductImage != nil {
		set["productImage"] = *patch.ProductImage
	}
	if patch.AvailableQuantity != nil {
		set["availableQuantity"] = *patch.AvailableQuantity
	}

	_, err := r.coll(CollAssets).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	return err
}

func (r *MongoRepository) DeleteAsset(ctx context.Context, id string) (int64, error) {
	result, err := r.coll(CollAssets).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// Request operations
func (r *MongoRepository) CreateRequest(ctx context.Context, req *models.Request) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.RequestDate.IsZero() {
		req.RequestDate = time.Now().UTC()
	}

	_, err := r.coll(CollRequests).InsertOne(ctx, req)
	return translateMongoError(err)
}

func (r *MongoRepository) GetRequest(ctx context.Context, id string) (*models.Request, error) {
	return findOne[models.Request](ctx, r.coll(CollRequests), bson.M{"_id": id})
}

func (r *MongoRepository) ListRequests(ctx context.Context, filter models.RequestFilter) ([]models.Request, int64, error) {
	query := bson.M{}
	if filter.RequesterEmail != "" {
		query["requesterEmail"] = filter.RequesterEmail
	}
	if filter.HREmail != "" {
		query["hrEmail"] = filter.HREmail
	}
	if filter.Status != "" {
		query["requestStatus"] = filter.Status
	}
	if filter.AssetType != "" {
		query["assetType"] = filter.AssetType
	}
	if filter.Search != "" {
		query["assetName"] = containsRegex(filter.Search)
	}

	total, err := r.coll(CollRequests).CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	opts := pageOptions(filter.Limit, filter.Skip).SetSort(bson.D{{Key: "requestDate", Value: -1}})
	requests, err := findAll[models.Request](ctx, r.coll(CollRequests), query, opts)
	if err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

// Affiliation operations
func (r *MongoRepository) ListAffiliations(ctx context.Context, filter models.AffiliationFilter) ([]models.EmployeeAffiliation, error) {
	query := bson.M{}
	if filter.HREmail != "" {
		query["hrEmail"] = filter.HREmail
	}
	if filter.EmployeeEmail != "" {
		query["employeeEmail"] = filter.EmployeeEmail
	}
	if filter.CompanyName != "" {
		query["companyName"] = filter.CompanyName
	}
	if filter.ActiveOnly {
		query["status"] = models.AffiliationActive
	}

	return findAll[models.EmployeeAffiliation](ctx, r.coll(CollAffiliations), query,
		options.Find().SetSort(bson.D{{Key: "affiliationDate", Value: 1}}))
}

func (r *MongoRepository) ListCompanies(ctx context.Context, employeeEmail string) ([]string, error) {
	values, err := r.coll(CollAffiliations).Distinct(ctx, "companyName", bson.M{
		"employeeEmail": employeeEmail,
		"status":        models.AffiliationActive,
	})
	if err != nil {
		return nil, err
	}

	companies := make([]string, 0, len(values))
	for _, v := range values {
		if name, ok := v.(string); ok {
			companies = append(companies, name)
		}
	}
	sort.Strings(companies)
	return companies, nil
}

func (r *MongoRepository) DeactivateAffiliations(ctx context.Context, hrEmail, employeeEmail string) (int64, error) {
	result, err := r.coll(CollAffiliations).UpdateMany(ctx,
		bson.M{"hrEmail": hrEmail, "employeeEmail": employeeEmail, "status": models.AffiliationActive},
		bson.M{"$set": bson.M{"status": models.AffiliationInactive}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

func (r *MongoRepository) ListTeamBirthdays(ctx context.Context, companyName string, month int) ([]models.TeamBirthday, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "companyName", Value: companyName},
			{Key: "status", Value: models.AffiliationActive},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: CollUsers},
			{Key: "localField", Value: "employeeEmail"},
			{Key: "foreignField", Value: "email"},
			{Key: "as", Value: "user"},
		}}},
		{{Key: "$unwind", Value: "$user"}},
		{{Key: "$match", Value: bson.D{
			{Key: "user.dateOfBirth", Value: bson.D{{Key: "$exists", Value: true}, {Key: "$ne", Value: nil}}},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "birthMonth", Value: bson.D{{Key: "$month", Value: "$user.dateOfBirth"}}},
		}}},
		{{Key: "$match", Value: bson.D{{Key: "birthMonth", Value: month}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$employeeEmail"},
			{Key: "employeeName", Value: bson.D{{Key: "$first", Value: "$employeeName"}}},
			{Key: "employeeLogo", Value: bson.D{{Key: "$first", Value: "$employeeLogo"}}},
			{Key: "dateOfBirth", Value: bson.D{{Key: "$first", Value: "$user.dateOfBirth"}}},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "employeeEmail", Value: "$_id"},
			{Key: "employeeName", Value: 1},
			{Key: "employeeLogo", Value: 1},
			{Key: "dateOfBirth", Value: 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "dateOfBirth", Value: 1}}}},
	}

	return aggregate[models.TeamBirthday](ctx, r.coll(CollAffiliations), pipeline)
}

func (r *MongoRepository) ListAssignedAssets(ctx context.Context, employeeEmail string) ([]models.AssignedAsset, error) {
	return findAll[models.AssignedAsset](ctx, r.coll(CollAssignedAsset), bson.M{"employeeEmail": employeeEmail},
		options.Find().SetSort(bson.D{{Key: "assignmentDate", Value: -1}}))
}

// Payment operations
func (r *MongoRepository) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	return findOne[models.Payment](ctx, r.coll(CollPayments), bson.M{"transactionId": transactionID})
}

func (r *MongoRepository) ListPayments(ctx context.Context, hrEmail string) ([]models.Payment, error) {
	return findAll[models.Payment](ctx, r.coll(CollPayments), bson.M{"hrEmail": hrEmail},
		options.Find().SetSort(bson.D{{Key: "paymentDate", Value: -1}}))
}

// Analytics
func (r *MongoRepository) AssetTypeDistribution(ctx context.Context, hrEmail string) ([]models.TypeCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "hrEmail", Value: hrEmail}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$productType"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
	return aggregate[models.TypeCount](ctx, r.coll(CollAssets), pipeline)
}

func (r *MongoRepository) TopRequestedAssets(ctx context.Context, hrEmail string, limit int) ([]models.AssetRequestCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "hrEmail", Value: hrEmail}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$assetId"},
			{Key: "assetName", Value: bson.D{{Key: "$max", Value: "$assetName"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "assetName", Value: 1}}}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "assetId", Value: "$_id"},
			{Key: "assetName", Value: 1},
			{Key: "count", Value: 1},
		}}},
	}
	return aggregate[models.AssetRequestCount](ctx, r.coll(CollRequests), pipeline)
}

// WithinTx runs fn inside a multi-document transaction. The driver retries fn on
// transient errors such as write conflicts, so fn must not keep side effects
// outside the transaction between attempts.
func (r *MongoRepository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	session, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(&mongoTx{repo: r, sc: sc})
	})
	return err
}

// mongoTx binds every operation to the transaction's session context; the
// per-call ctx arguments are ignored because sc already carries the caller's deadline.
type mongoTx struct {
	repo *MongoRepository
	sc   mongo.SessionContext
}

func (t *mongoTx) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	return findOne[models.User](t.sc, t.repo.coll(CollUsers), bson.M{"email": email})
}

// LockUser bumps entitlementVersion so that two transactions allocating seats for
// the same HR account write-conflict and one of them retries.
func (t *mongoTx) LockUser(_ context.Context, email string) (*models.User, error) {
	var user models.User
	err := t.repo.coll(CollUsers).FindOneAndUpdate(t.sc,
		bson.M{"email": email},
		bson.M{"$inc": bson.M{"entitlementVersion": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (t *mongoTx) UpdateUserEntitlement(_ context.Context, email string, packageLimit int, subscription string) (bool, error) {
	result, err := t.repo.coll(CollUsers).UpdateOne(t.sc,
		bson.M{"email": email},
		bson.M{
			"$set": bson.M{"packageLimit": packageLimit, "subscription": subscription, "updatedAt": time.Now().UTC()},
			"$inc": bson.M{"entitlementVersion": 1},
		},
	)
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

func (t *mongoTx) GetRequestForUpdate(_ context.Context, id string) (*models.Request, error) {
	return findOne[models.Request](t.sc, t.repo.coll(CollRequests), bson.M{"_id": id})
}

func (t *mongoTx) TransitionRequest(_ context.Context, id string, tr models.RequestTransition) (bool, error) {
	set := bson.M{"requestStatus": tr.To}
	if tr.ProcessedBy != "" {
		set["processedBy"] = tr.ProcessedBy
	}
	if tr.ProcessedAt != nil {
		set["processedAt"] = *tr.ProcessedAt
	}
	if tr.ReturnDate != nil {
		set["returnDate"] = *tr.ReturnDate
	}
	if tr.Note != "" {
		set["note"] = tr.Note
	}

	result, err := t.repo.coll(CollRequests).UpdateOne(t.sc,
		bson.M{"_id": id, "requestStatus": tr.From},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, err
	}
	return result.ModifiedCount == 1, nil
}

func (t *mongoTx) DecrementAvailableQuantity(_ context.Context, assetID string) (bool, error) {
	result, err := t.repo.coll(CollAssets).UpdateOne(t.sc,
		bson.M{"_id": assetID, "availableQuantity": bson.M{"$gt": 0}},
		bson.M{
			"$inc": bson.M{"availableQuantity": -1},
			"$set": bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, err
	}
	return result.ModifiedCount == 1, nil
}

func (t *mongoTx) FindActiveAffiliation(_ context.Context, employeeEmail, hrEmail, companyName string) (*models.EmployeeAffiliation, error) {
	return findOne[models.EmployeeAffiliation](t.sc, t.repo.coll(CollAffiliations), bson.M{
		"employeeEmail": employeeEmail,
		"hrEmail":       hrEmail,
		"companyName":   companyName,
		"status":        models.AffiliationActive,
	})
}

func (t *mongoTx) IncrementAffiliationAssetCount(_ context.Context, id string) error {
	_, err := t.repo.coll(CollAffiliations).UpdateOne(t.sc,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"assetCount": 1}},
	)
	return err
}

func (t *mongoTx) CountActiveAffiliations(_ context.Context, hrEmail string) (int64, error) {
	return t.repo.coll(CollAffiliations).CountDocuments(t.sc, bson.M{
		"hrEmail": hrEmail,
		"status":  models.AffiliationActive,
	})
}

func (t *mongoTx) CreateAffiliation(_ context.Context, a *models.EmployeeAffiliation) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.AffiliationDate.IsZero() {
		a.AffiliationDate = time.Now().UTC()
	}
	_, err := t.repo.coll(CollAffiliations).InsertOne(t.sc, a)
	return translateMongoError(err)
}

func (t *mongoTx) CreateAssignedAsset(_ context.Context, a *models.AssignedAsset) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	_, err := t.repo.coll(CollAssignedAsset).InsertOne(t.sc, a)
	return translateMongoError(err)
}

func (t *mongoTx) GetPackage(_ context.Context, id string) (*models.Package, error) {
	return findOne[models.Package](t.sc, t.repo.coll(CollPackages), bson.M{"_id": id})
}

func (t *mongoTx) GetPaymentByTransactionID(_ context.Context, transactionID string) (*models.Payment, error) {
	return findOne[models.Payment](t.sc, t.repo.coll(CollPayments), bson.M{"transactionId": transactionID})
}

func (t *mongoTx) CreatePayment(_ context.Context, p *models.Payment) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	_, err := t.repo.coll(CollPayments).InsertOne(t.sc, p)
	return translateMongoError(err)
}
