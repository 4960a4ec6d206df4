package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Species is a single fish species stored in the especies collection.
type Species struct {
	ID                 primitive.ObjectID `json:"_id"                 bson:"_id,omitempty"`
	CommonName         string             `json:"nombre_comun"        bson:"nombre_comun"`
	ScientificName     string             `json:"nombre_cientifico"   bson:"nombre_cientifico"`
	Family             string             `json:"familia"             bson:"familia"`
	Diet               string             `json:"alimentacion"        bson:"alimentacion"`
	ConservationStatus string             `json:"estado_conservacion" bson:"estado_conservacion"`
	ImageURL           string             `json:"imagen_url"          bson:"imagen_url"`
	Enabled            bool               `json:"enabled"             bson:"enabled"`
}

// SpeciesInput carries the writable fields of a species. Nil pointers are
// left untouched on update.
type SpeciesInput struct {
	CommonName         *string `json:"nombre_comun"`
	ScientificName     *string `json:"nombre_cientifico"`
	Family             *string `json:"familia"`
	Diet               *string `json:"alimentacion"`
	ConservationStatus *string `json:"estado_conservacion"`
	ImageURL           *string `json:"imagen_url"`
	Enabled            *bool   `json:"enabled"`
}

// EnabledRequest is the JSON body for PATCH /especies/{id}/enabled.
type EnabledRequest struct {
	Enabled *bool `json:"enabled"`
}
