// Package listing は掲載の公開・削除フローを提供する。
// バリデーションはリモート呼び出しの前に同期的に行い、
// 失敗はmodel.APIErrorとして呼び出し元へ返す。
package listing

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/journeyconnect/internal/model"
	"github.com/hitoshi/journeyconnect/internal/normalize"
)

// maxCommentWords はコメントの語数上限。
const maxCommentWords = 10

// flexibleDateWindow は柔軟な日程のREQUESTが類似と判定される日数幅。
const flexibleDateWindowDays = 2

var trainNumberPattern = regexp.MustCompile(`^\d{5}$`)

// ListingStore は掲載の追加・削除・取得を提供するストアのインターフェース。
type ListingStore interface {
	List(ctx context.Context) ([]model.Listing, error)
	Add(ctx context.Context, listing *model.Listing) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*model.Listing, error)
}

// Service は掲載の公開フローを実装する。
type Service struct {
	store ListingStore
	loc   *time.Location
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(store ListingStore, loc *time.Location) *Service {
	return &Service{store: store, loc: loc}
}

// Validate は公開前のバリデーションを行う。
// 失敗時はvalidationカテゴリのAPIErrorを返す。
func (s *Service) Validate(listing *model.Listing) error {
	if !trainNumberPattern.MatchString(listing.TrainNumber) {
		return model.NewInvalidTrainNumberError(listing.TrainNumber)
	}
	if strings.TrimSpace(listing.Date) == "" {
		return model.NewMissingDateError()
	}
	if listing.Price <= 0 {
		return model.NewInvalidPriceError(listing.Price)
	}
	if words := len(strings.Fields(listing.Comment)); words > maxCommentWords {
		return model.NewCommentTooLongError(words)
	}
	return nil
}

// Publish は掲載を検証して公開する。
// id・状態・作成時刻をここで割り当て、所要時間が空なら発着時刻から導出する。
func (s *Service) Publish(ctx context.Context, listing *model.Listing, user *model.User) (*model.Listing, error) {
	if err := s.Validate(listing); err != nil {
		return nil, err
	}

	listing.ID = uuid.New().String()
	listing.UserID = user.ID
	listing.Status = model.ListingStatusOpen
	listing.CreatedAt = time.Now().UnixMilli()
	if listing.SellerName == "" {
		listing.SellerName = user.Name
	}
	if listing.Duration == "" {
		listing.Duration = normalize.CalculateDuration(listing.DepartureTime, listing.ArrivalTime)
	}

	if err := s.store.Add(ctx, listing); err != nil {
		return nil, fmt.Errorf("掲載の公開に失敗しました: %w", err)
	}
	return listing, nil
}

// FindSimilar は公開しようとしているREQUEST掲載に対して、同じ列車の
// 公開中OFFER掲載から類似候補を返す。OFFERの公開時は常に空を返す。
// 日付は完全一致、ただし柔軟な日程なら前後2日以内。
// 等級は完全一致、ただし柔軟な等級なら任意。
func (s *Service) FindSimilar(ctx context.Context, request *model.Listing) ([]model.Listing, error) {
	if request.Type != model.ListingTypeRequest {
		return nil, nil
	}

	all, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("類似掲載の検索に失敗しました: %w", err)
	}

	similar := make([]model.Listing, 0)
	for _, l := range all {
		if l.Type != model.ListingTypeOffer || l.Status != model.ListingStatusOpen {
			continue
		}
		if l.TrainNumber != request.TrainNumber {
			continue
		}
		if !s.dateMatches(request, &l) {
			continue
		}
		if !classMatches(request, &l) {
			continue
		}
		similar = append(similar, l)
	}
	return similar, nil
}

func (s *Service) dateMatches(request, offer *model.Listing) bool {
	if request.Date == offer.Date {
		return true
	}
	if !request.IsFlexibleDate {
		return false
	}
	reqDate, err1 := time.ParseInLocation("2006-01-02", request.Date, s.loc)
	offDate, err2 := time.ParseInLocation("2006-01-02", offer.Date, s.loc)
	if err1 != nil || err2 != nil {
		return false
	}
	diff := reqDate.Sub(offDate)
	if diff < 0 {
		diff = -diff
	}
	return diff <= flexibleDateWindowDays*24*time.Hour
}

func classMatches(request, offer *model.Listing) bool {
	if request.IsFlexibleClass {
		return true
	}
	return request.ClassType == offer.ClassType
}

// Delete は掲載を削除する。所有者本人または管理者のみ削除できる。
// 掲載が存在しない場合はLISTING_NOT_FOUNDを返す。
func (s *Service) Delete(ctx context.Context, id string, user *model.User) error {
	target, err := s.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("掲載の取得に失敗しました: %w", err)
	}
	if target == nil {
		return model.NewListingNotFoundError(id)
	}
	if target.UserID != user.ID && user.Role != model.RoleAdmin {
		return model.NewForbiddenError()
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("掲載の削除に失敗しました: %w", err)
	}
	return nil
}
