package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ayush/peces-catalog/internal/models"
)

// speciesDoc mirrors models.Species; Enabled is a pointer because documents
// written before the flag existed lack it and count as enabled.
type speciesDoc struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty"`
	CommonName         string             `bson:"nombre_comun"`
	ScientificName     string             `bson:"nombre_cientifico"`
	Family             string             `bson:"familia"`
	Diet               string             `bson:"alimentacion"`
	ConservationStatus string             `bson:"estado_conservacion"`
	ImageURL           string             `bson:"imagen_url"`
	Enabled            *bool              `bson:"enabled,omitempty"`
}

func (d speciesDoc) model() models.Species {
	return models.Species{
		ID:                 d.ID,
		CommonName:         d.CommonName,
		ScientificName:     d.ScientificName,
		Family:             d.Family,
		Diet:               d.Diet,
		ConservationStatus: d.ConservationStatus,
		ImageURL:           d.ImageURL,
		Enabled:            d.Enabled == nil || *d.Enabled,
	}
}

// MongoSpeciesStore handles species CRUD in the especies collection.
type MongoSpeciesStore struct {
	col *mongo.Collection
}

func NewMongoSpeciesStore(db *mongo.Database) *MongoSpeciesStore {
	return &MongoSpeciesStore{col: db.Collection("especies")}
}

// EnsureIndexes creates the sort index on nombre_comun.
func (s *MongoSpeciesStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "nombre_comun", Value: 1}},
	})
	return err
}

// List returns species sorted by common name. With onlyEnabled, disabled
// species are skipped.
func (s *MongoSpeciesStore) List(ctx context.Context, onlyEnabled bool) ([]models.Species, error) {
	filter := bson.M{}
	if onlyEnabled {
		filter["enabled"] = bson.M{"$ne": false}
	}
	opts := options.Find().SetSort(bson.D{{Key: "nombre_comun", Value: 1}})
	cur, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find species: %w", err)
	}
	defer cur.Close(ctx)

	var docs []speciesDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo decode species: %w", err)
	}
	out := make([]models.Species, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func (s *MongoSpeciesStore) Get(ctx context.Context, id string) (*models.Species, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var doc speciesDoc
	if err := s.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	sp := doc.model()
	return &sp, nil
}

func (s *MongoSpeciesStore) Insert(ctx context.Context, sp *models.Species) (*models.Species, error) {
	enabled := sp.Enabled
	doc := speciesDoc{
		CommonName:         sp.CommonName,
		ScientificName:     sp.ScientificName,
		Family:             sp.Family,
		Diet:               sp.Diet,
		ConservationStatus: sp.ConservationStatus,
		ImageURL:           sp.ImageURL,
		Enabled:            &enabled,
	}
	res, err := s.col.InsertOne(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("mongo insert species: %w", err)
	}
	out := *sp
	out.ID = res.InsertedID.(primitive.ObjectID)
	return &out, nil
}

// Update applies the non-nil fields of in and returns the updated species.
func (s *MongoSpeciesStore) Update(ctx context.Context, id string, in models.SpeciesInput) (*models.Species, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	set := bson.M{}
	setIf := func(key string, v *string) {
		if v != nil {
			set[key] = *v
		}
	}
	setIf("nombre_comun", in.CommonName)
	setIf("nombre_cientifico", in.ScientificName)
	setIf("familia", in.Family)
	setIf("alimentacion", in.Diet)
	setIf("estado_conservacion", in.ConservationStatus)
	setIf("imagen_url", in.ImageURL)
	if in.Enabled != nil {
		set["enabled"] = *in.Enabled
	}
	if len(set) == 0 {
		return s.Get(ctx, id)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc speciesDoc
	err = s.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set}, opts).Decode(&doc)
	if err != nil {
		return nil, notFound(err)
	}
	sp := doc.model()
	return &sp, nil
}

// Delete removes a species and returns what was removed.
func (s *MongoSpeciesStore) Delete(ctx context.Context, id string) (*models.Species, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var doc speciesDoc
	if err := s.col.FindOneAndDelete(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	sp := doc.model()
	return &sp, nil
}

type userDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Username  string             `bson:"username"`
	Password  string             `bson:"password"`
	Role      models.Role        `bson:"role"`
	CreatedAt time.Time          `bson:"created_at,omitempty"`
}

// MongoUserStore reads and seeds the usuarios collection.
type MongoUserStore struct {
	col *mongo.Collection
}

func NewMongoUserStore(db *mongo.Database) *MongoUserStore {
	return &MongoUserStore{col: db.Collection("usuarios")}
}

// EnsureIndexes creates the unique index on username.
func (s *MongoUserStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (s *MongoUserStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var doc userDoc
	if err := s.col.FindOne(ctx, bson.M{"username": username}).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	return &models.User{
		ID:        doc.ID.Hex(),
		Username:  doc.Username,
		Password:  doc.Password,
		Role:      doc.Role,
		CreatedAt: doc.CreatedAt,
	}, nil
}

func (s *MongoUserStore) CreateUser(ctx context.Context, u *models.User) error {
	doc := userDoc{Username: u.Username, Password: u.Password, Role: u.Role, CreatedAt: time.Now()}
	res, err := s.col.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("mongo insert user: %w", err)
	}
	u.ID = res.InsertedID.(primitive.ObjectID).Hex()
	u.CreatedAt = doc.CreatedAt
	return nil
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return oid, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return oid, nil
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}
