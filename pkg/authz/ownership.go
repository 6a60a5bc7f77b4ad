package authz

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// OwnershipResolver resolves a resource to the property (or properties) it
// belongs to, and to its owning organization. Ownership edges are written
// once at resource creation and effectively never change, so lookups go
// through a short-TTL LRU.
type OwnershipResolver struct {
	db       *sql.DB
	props    *lru.LRU[ownershipKey, []int64]
	orgCache *lru.LRU[ownershipKey, int64]
}

type ownershipKey struct {
	resourceType ResourceType
	resourceID   int64
}

// NewOwnershipResolver creates a resolver with a bounded cache
func NewOwnershipResolver(db *sql.DB, cacheSize int, cacheTTL time.Duration) *OwnershipResolver {
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &OwnershipResolver{
		db:       db,
		props:    lru.NewLRU[ownershipKey, []int64](cacheSize, nil, cacheTTL),
		orgCache: lru.NewLRU[ownershipKey, int64](cacheSize, nil, cacheTTL),
	}
}

// PropertyIDs resolves the property ids a resource belongs to. A property
// resolves to itself. A tenant may span several leases, so it can resolve to
// multiple properties and access through any one of them suffices. An
// unresolvable resource returns an empty slice with no error; the engine
// treats that as "team scoping does not apply here".
func (r *OwnershipResolver) PropertyIDs(ctx context.Context, resourceType ResourceType, resourceID int64) ([]int64, error) {
	if resourceID == 0 {
		return nil, nil
	}

	key := ownershipKey{resourceType: resourceType, resourceID: resourceID}
	if ids, ok := r.props.Get(key); ok {
		return ids, nil
	}

	ids, err := r.lookupPropertyIDs(ctx, resourceType, resourceID)
	if err != nil {
		return nil, err
	}

	r.props.Add(key, ids)
	return ids, nil
}

func (r *OwnershipResolver) lookupPropertyIDs(ctx context.Context, resourceType ResourceType, resourceID int64) ([]int64, error) {
	switch resourceType {
	case ResourceProperty:
		return []int64{resourceID}, nil

	case ResourceUnit:
		return r.singlePropertyID(ctx, `SELECT property_id FROM units WHERE id = $1`, resourceID)

	case ResourceLease:
		return r.singlePropertyID(ctx, `SELECT property_id FROM leases WHERE id = $1`, resourceID)

	case ResourceMaintenance:
		return r.singlePropertyID(ctx, `SELECT property_id FROM maintenance_requests WHERE id = $1`, resourceID)

	case ResourceTenant:
		// A tenant reaches properties through every lease they hold.
		return r.tenantPropertyIDs(ctx, resourceID)

	default:
		return nil, nil
	}
}

func (r *OwnershipResolver) singlePropertyID(ctx context.Context, query string, resourceID int64) ([]int64, error) {
	var propertyID int64
	err := r.db.QueryRowContext(ctx, query, resourceID).Scan(&propertyID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve property: %w", err)
	}
	return []int64{propertyID}, nil
}

func (r *OwnershipResolver) tenantPropertyIDs(ctx context.Context, tenantID int64) ([]int64, error) {
	query := `
		SELECT DISTINCT l.property_id
		FROM leases l
		JOIN lease_tenants lt ON lt.lease_id = l.id
		WHERE lt.tenant_id = $1
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tenant properties: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan property id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tenant properties: %w", err)
	}

	return ids, nil
}

// OrganizationID resolves the organization a resource belongs to, returning
// 0 when ownership cannot be determined. Used for cross-organization
// isolation: a resource owned by another organization is denied outright.
func (r *OwnershipResolver) OrganizationID(ctx context.Context, resourceType ResourceType, resourceID int64) (int64, error) {
	if resourceID == 0 {
		return 0, nil
	}

	key := ownershipKey{resourceType: resourceType, resourceID: resourceID}
	if orgID, ok := r.orgCache.Get(key); ok {
		return orgID, nil
	}

	var orgID int64
	var err error

	if resourceType == ResourceProperty {
		orgID, err = r.propertyOrganizationID(ctx, resourceID)
	} else {
		propertyIDs, perr := r.PropertyIDs(ctx, resourceType, resourceID)
		if perr != nil {
			return 0, perr
		}
		if len(propertyIDs) == 0 {
			return 0, nil
		}
		orgID, err = r.propertyOrganizationID(ctx, propertyIDs[0])
	}
	if err != nil {
		return 0, err
	}

	r.orgCache.Add(key, orgID)
	return orgID, nil
}

func (r *OwnershipResolver) propertyOrganizationID(ctx context.Context, propertyID int64) (int64, error) {
	var orgID int64
	err := r.db.QueryRowContext(ctx, `SELECT organization_id FROM properties WHERE id = $1`, propertyID).Scan(&orgID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve property organization: %w", err)
	}
	return orgID, nil
}
