// Package model はドメインモデルを定義する。
package model

// Listing は掲載された乗車券の譲渡（OFFER）または希望（REQUEST）を表す。
// リモートのシート側カラム名とは独立した正規化済みのフィールド名を持つ。
type Listing struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	Type          ListingType `json:"type"`
	TrainName     string     `json:"trainName"`
	TrainNumber   string     `json:"trainNumber"`
	FromStation   string     `json:"fromStation"`
	ToStation     string     `json:"toStation"`
	Date          string     `json:"date"` // YYYY-MM-DD（Asia/Kolkata基準）
	DepartureTime string     `json:"departureTime"` // HH:mm
	ArrivalTime   string     `json:"arrivalTime"`   // HH:mm
	Duration      string     `json:"duration"`      // "{h}h {mm}m"
	ClassType     TrainClass `json:"classType"`
	BerthType     string     `json:"berthType,omitempty"`
	Price         float64    `json:"price"`
	Status        ListingStatus `json:"status"`
	UserContact   string     `json:"userContact"`
	SellerName    string     `json:"sellerName,omitempty"`
	Comment       string     `json:"comment,omitempty"`
	IsFlexibleDate  bool     `json:"isFlexibleDate,omitempty"`
	IsFlexibleClass bool     `json:"isFlexibleClass,omitempty"`
	CreatedAt     int64      `json:"createdAt"` // unixミリ秒
}

// ListingType は掲載の方向（譲渡か希望か）を表す。
type ListingType string

const (
	// ListingTypeOffer は乗車券を譲りたい掲載。
	ListingTypeOffer ListingType = "OFFER"
	// ListingTypeRequest は乗車券を求める掲載。
	ListingTypeRequest ListingType = "REQUEST"
)

// ListingStatus は掲載のライフサイクル状態を表す。
// 検索対象となるのはOPENのみ。
type ListingStatus string

const (
	ListingStatusOpen    ListingStatus = "OPEN"
	ListingStatusPending ListingStatus = "PENDING"
	ListingStatusClosed  ListingStatus = "CLOSED"
	ListingStatusBooked  ListingStatus = "BOOKED"
)

// TrainClass は列車の等級を表す。
type TrainClass string

const (
	TrainClassEA TrainClass = "EA" // Anubhuti Class
	TrainClassEC TrainClass = "EC" // Executive Chair Car
	TrainClass1A TrainClass = "1A" // First AC
	TrainClass2A TrainClass = "2A" // Second AC
	TrainClass3A TrainClass = "3A" // Third AC
	TrainClass3E TrainClass = "3E" // Third AC Economy
	TrainClassFC TrainClass = "FC" // First Class
	TrainClassCC TrainClass = "CC" // AC Chair Car
	TrainClassSL TrainClass = "SL" // Sleeper
	TrainClass2S TrainClass = "2S" // Second Sitting
)

// MatchStrength はルート照合の一致強度を表す。
type MatchStrength string

const (
	// MatchStrengthAll は一致強度で絞り込まない。
	MatchStrengthAll MatchStrength = "ALL"
	// MatchStrengthExact は完全一致のみ。
	MatchStrengthExact MatchStrength = "EXACT"
	// MatchStrengthPartial は部分一致のみ。
	MatchStrengthPartial MatchStrength = "PARTIAL"
)

// SortKey は検索結果のソート順を表す。
type SortKey string

const (
	// SortKeyDate は乗車日の昇順。
	SortKeyDate SortKey = "DATE"
	// SortKeyPriceAsc は価格の昇順。
	SortKeyPriceAsc SortKey = "PRICE_ASC"
	// SortKeyPriceDesc は価格の降順。
	SortKeyPriceDesc SortKey = "PRICE_DESC"
)

// RouteMatches はルート分類コラボレータが返す一致ID集合。
// どちらの集合にも含まれないIDは「一致なし」を意味する。
type RouteMatches struct {
	Exact   []string `json:"exact"`
	Partial []string `json:"partial"`
}
