package users

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/avast/retry-go"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/memtensor/userbio/pkg/config"
	apperrors "github.com/memtensor/userbio/pkg/errors"
	"github.com/memtensor/userbio/pkg/interfaces"
	"github.com/memtensor/userbio/pkg/types"
)

const pingTimeout = 5 * time.Second

// MongoRepository implements Repository on MongoDB
type MongoRepository struct {
	client *mongo.Client
	db     *mongo.Database
	roles  *mongo.Collection
	users  *mongo.Collection
	logger interfaces.Logger
}

// Connect dials MongoDB, retrying with backoff, and prepares the collections
func Connect(ctx context.Context, cfg config.MongoDBConfig, logger interfaces.Logger) (*MongoRepository, error) {
	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName("userbio").
		SetRetryWrites(true).
		SetRetryReads(true)
	if cfg.ConnectTimeout > 0 {
		clientOpts.SetConnectTimeout(cfg.ConnectTimeout)
		clientOpts.SetServerSelectionTimeout(cfg.ConnectTimeout)
	}
	if cfg.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = 1
	}

	var client *mongo.Client
	err := retry.Do(
		func() error {
			c, err := mongo.Connect(ctx, clientOpts)
			if err != nil {
				return err
			}

			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			defer cancel()
			if err := c.Ping(pingCtx, readpref.Primary()); err != nil {
				_ = c.Disconnect(context.Background())
				return err
			}

			client = c
			return nil
		},
		retry.Attempts(attempts),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("MongoDB connection attempt failed, retrying", map[string]interface{}{
				"attempt": n + 1,
				"error":   err.Error(),
			})
		}),
	)
	if err != nil {
		return nil, apperrors.NewConnectionFailedError("mongodb", err)
	}

	repo := NewMongoRepository(client, cfg.Database, logger)
	if err := repo.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info("Connected to MongoDB", map[string]interface{}{"database": cfg.Database})
	return repo, nil
}

// NewMongoRepository wraps an already connected client
func NewMongoRepository(client *mongo.Client, database string, logger interfaces.Logger) *MongoRepository {
	db := client.Database(database)
	return &MongoRepository{
		client: client,
		db:     db,
		roles:  db.Collection(RolesCollection),
		users:  db.Collection(UsersCollection),
		logger: logger,
	}
}

// EnsureIndexes creates the unique indexes behind role name and user email uniqueness
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	if _, err := r.roles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_role_name"),
	}); err != nil {
		return apperrors.NewDatabaseErrorWithCause("failed to create role indexes", err)
	}

	if _, err := r.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_user_email"),
	}); err != nil {
		return apperrors.NewDatabaseErrorWithCause("failed to create user indexes", err)
	}
	return nil
}

// Name identifies the dependency in health output
func (r *MongoRepository) Name() string {
	return "mongodb"
}

// Check pings the primary
func (r *MongoRepository) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return r.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client
func (r *MongoRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// Roles

func (r *MongoRepository) CreateRole(ctx context.Context, role *Role) error {
	if role.ID.IsZero() {
		role.ID = primitive.NewObjectID()
	}
	if _, err := r.roles.InsertOne(ctx, role); err != nil {
		return writeError("role", err)
	}
	return nil
}

func (r *MongoRepository) GetRole(ctx context.Context, id primitive.ObjectID) (*Role, error) {
	var role Role
	if err := r.roles.FindOne(ctx, bson.M{"_id": id}).Decode(&role); err != nil {
		return nil, readError("role", err)
	}
	return &role, nil
}

func (r *MongoRepository) ListRoles(ctx context.Context, page types.PageRequest) ([]Role, int64, error) {
	page = page.Normalize()

	total, err := r.roles.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, apperrors.NewDatabaseErrorWithCause("failed to count roles", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}}).
		SetSkip(page.Skip()).
		SetLimit(int64(page.Limit))

	cursor, err := r.roles.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, apperrors.NewDatabaseErrorWithCause("failed to list roles", err)
	}

	roles := []Role{}
	if err := cursor.All(ctx, &roles); err != nil {
		return nil, 0, apperrors.NewDatabaseErrorWithCause("failed to decode roles", err)
	}
	return roles, total, nil
}

func (r *MongoRepository) UpdateRole(ctx context.Context, role *Role) error {
	res, err := r.roles.ReplaceOne(ctx, bson.M{"_id": role.ID}, role)
	if err != nil {
		return writeError("role", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NewNotFoundError("role")
	}
	return nil
}

func (r *MongoRepository) DeleteRole(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.roles.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return apperrors.NewDatabaseErrorWithCause("failed to delete role", err)
	}
	if res.DeletedCount == 0 {
		return apperrors.NewNotFoundError("role")
	}
	return nil
}

// Users

func (r *MongoRepository) CreateUser(ctx context.Context, user *User) error {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if _, err := r.users.InsertOne(ctx, user.stored()); err != nil {
		return writeError("user", err)
	}
	return nil
}

func (r *MongoRepository) GetUser(ctx context.Context, id primitive.ObjectID) (*User, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": id}}},
		{{Key: "$limit", Value: 1}},
	}
	pipeline = append(pipeline, roleLookupStages()...)

	users, err := r.aggregateUsers(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, apperrors.NewNotFoundError("user")
	}
	return &users[0], nil
}

func (r *MongoRepository) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := r.users.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseErrorWithCause("failed to look up user by email", err)
	}
	return &user, nil
}

func (r *MongoRepository) ListUsers(ctx context.Context, filter UserFilter) ([]User, int64, error) {
	page := filter.PageRequest.Normalize()
	match := buildUserFilter(filter)

	total, err := r.users.CountDocuments(ctx, match)
	if err != nil {
		return nil, 0, apperrors.NewDatabaseErrorWithCause("failed to count users", err)
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: buildUserSort(filter.Sort, filter.Order)}},
		{{Key: "$skip", Value: page.Skip()}},
		{{Key: "$limit", Value: int64(page.Limit)}},
	}
	pipeline = append(pipeline, roleLookupStages()...)

	users, err := r.aggregateUsers(ctx, pipeline)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *MongoRepository) CountUsersWithRole(ctx context.Context, roleID primitive.ObjectID) (int64, error) {
	n, err := r.users.CountDocuments(ctx, bson.M{"role_id": roleID})
	if err != nil {
		return 0, apperrors.NewDatabaseErrorWithCause("failed to count users by role", err)
	}
	return n, nil
}

func (r *MongoRepository) UpdateUser(ctx context.Context, user *User) error {
	res, err := r.users.ReplaceOne(ctx, bson.M{"_id": user.ID}, user.stored())
	if err != nil {
		return writeError("user", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NewNotFoundError("user")
	}
	return nil
}

func (r *MongoRepository) DeleteUser(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return apperrors.NewDatabaseErrorWithCause("failed to delete user", err)
	}
	if res.DeletedCount == 0 {
		return apperrors.NewNotFoundError("user")
	}
	return nil
}

func (r *MongoRepository) aggregateUsers(ctx context.Context, pipeline mongo.Pipeline) ([]User, error) {
	cursor, err := r.users.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, apperrors.NewDatabaseErrorWithCause("failed to query users", err)
	}

	users := []User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, apperrors.NewDatabaseErrorWithCause("failed to decode users", err)
	}
	return users, nil
}

// roleLookupStages joins the role summary onto each user
func roleLookupStages() []bson.D {
	return []bson.D{
		{{Key: "$lookup", Value: bson.M{
			"from":         RolesCollection,
			"localField":   "role_id",
			"foreignField": "_id",
			"as":           "role",
		}}},
		{{Key: "$unwind", Value: bson.M{
			"path":                       "$role",
			"preserveNullAndEmptyArrays": true,
		}}},
		{{Key: "$project", Value: bson.M{
			"role.description": 0,
			"role.created_at":  0,
			"role.updated_at":  0,
		}}},
	}
}

// buildUserFilter translates a UserFilter into a query document
func buildUserFilter(f UserFilter) bson.M {
	filter := bson.M{}
	if f.RoleID != nil {
		filter["role_id"] = *f.RoleID
	}
	if f.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"email": pattern},
		}
	}
	return filter
}

// buildUserSort orders by the requested field with _id as a tiebreaker
func buildUserSort(field string, order types.SortOrder) bson.D {
	switch field {
	case SortByName, SortByEmail, SortByCreatedAt:
	default:
		field = SortByCreatedAt
	}

	dir := -1
	if order == types.SortAsc {
		dir = 1
	}
	return bson.D{{Key: field, Value: dir}, {Key: "_id", Value: dir}}
}

func readError(resource string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperrors.NewNotFoundError(resource)
	}
	return apperrors.NewDatabaseErrorWithCause("failed to read "+resource, err)
}

func writeError(resource string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return apperrors.NewAlreadyExistsError(resource)
	}
	return apperrors.NewDatabaseErrorWithCause("failed to write "+resource, err)
}

var _ Repository = (*MongoRepository)(nil)
var _ interfaces.HealthChecker = (*MongoRepository)(nil)
