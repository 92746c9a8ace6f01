package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/journeyconnect/internal/model"
)

// PostgresCache はPostgreSQLを使用したListingCache実装。
// プロセス再起動をまたいでスナップショットを保持する。
// Saveはトランザクション内で全削除と一括挿入を行い、
// 読み取り側が中間状態を観測しないようにする。
type PostgresCache struct {
	db *sql.DB
}

// NewPostgresCache はPostgresCacheを生成する。
func NewPostgresCache(db *sql.DB) *PostgresCache {
	return &PostgresCache{db: db}
}

// Load は保存済みのスナップショットを返す。
func (c *PostgresCache) Load(ctx context.Context) ([]model.Listing, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, user_id, type, train_name, train_number, from_station, to_station,
		        travel_date, departure_time, arrival_time, duration, class_type, berth_type,
		        price, status, user_contact, seller_name, comment,
		        is_flexible_date, is_flexible_class, created_at
		 FROM listings
		 ORDER BY travel_date, id`)
	if err != nil {
		return nil, fmt.Errorf("掲載スナップショットの読み取りに失敗しました: %w", err)
	}
	defer rows.Close()

	var listings []model.Listing
	for rows.Next() {
		var l model.Listing
		var berthType, sellerName, comment sql.NullString
		if err := rows.Scan(
			&l.ID, &l.UserID, &l.Type, &l.TrainName, &l.TrainNumber, &l.FromStation, &l.ToStation,
			&l.Date, &l.DepartureTime, &l.ArrivalTime, &l.Duration, &l.ClassType, &berthType,
			&l.Price, &l.Status, &l.UserContact, &sellerName, &comment,
			&l.IsFlexibleDate, &l.IsFlexibleClass, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("掲載行のスキャンに失敗しました: %w", err)
		}
		l.BerthType = berthType.String
		l.SellerName = sellerName.String
		l.Comment = comment.String
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("掲載スナップショットの走査に失敗しました: %w", err)
	}

	if listings == nil {
		listings = []model.Listing{}
	}
	return listings, nil
}

// Save はスナップショット全体をトランザクションで置き換える。
func (c *PostgresCache) Save(ctx context.Context, listings []model.Listing) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM listings`); err != nil {
		return fmt.Errorf("旧スナップショットの削除に失敗しました: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO listings (
		    id, user_id, type, train_name, train_number, from_station, to_station,
		    travel_date, departure_time, arrival_time, duration, class_type, berth_type,
		    price, status, user_contact, seller_name, comment,
		    is_flexible_date, is_flexible_class, created_at
		 ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		 ON CONFLICT (id) DO UPDATE SET
		    user_id = EXCLUDED.user_id,
		    type = EXCLUDED.type,
		    train_name = EXCLUDED.train_name,
		    train_number = EXCLUDED.train_number,
		    from_station = EXCLUDED.from_station,
		    to_station = EXCLUDED.to_station,
		    travel_date = EXCLUDED.travel_date,
		    departure_time = EXCLUDED.departure_time,
		    arrival_time = EXCLUDED.arrival_time,
		    duration = EXCLUDED.duration,
		    class_type = EXCLUDED.class_type,
		    berth_type = EXCLUDED.berth_type,
		    price = EXCLUDED.price,
		    status = EXCLUDED.status,
		    user_contact = EXCLUDED.user_contact,
		    seller_name = EXCLUDED.seller_name,
		    comment = EXCLUDED.comment,
		    is_flexible_date = EXCLUDED.is_flexible_date,
		    is_flexible_class = EXCLUDED.is_flexible_class,
		    created_at = EXCLUDED.created_at`)
	if err != nil {
		return fmt.Errorf("挿入ステートメントの準備に失敗しました: %w", err)
	}
	defer stmt.Close()

	// 重複idはリモート側の「後勝ち」規則に合わせてUPSERTで吸収する
	for _, l := range listings {
		if _, err := stmt.ExecContext(ctx,
			l.ID, l.UserID, l.Type, l.TrainName, l.TrainNumber, l.FromStation, l.ToStation,
			l.Date, l.DepartureTime, l.ArrivalTime, l.Duration, l.ClassType, nullIfEmpty(l.BerthType),
			l.Price, l.Status, l.UserContact, nullIfEmpty(l.SellerName), nullIfEmpty(l.Comment),
			l.IsFlexibleDate, l.IsFlexibleClass, l.CreatedAt,
		); err != nil {
			return fmt.Errorf("掲載の挿入に失敗しました (id=%s): %w", l.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// Clear はスナップショットを破棄する。
func (c *PostgresCache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM listings`); err != nil {
		return fmt.Errorf("スナップショットの破棄に失敗しました: %w", err)
	}
	return nil
}

// Health はデータベースの疎通を確認する。
func (c *PostgresCache) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// nullIfEmpty は空文字列をNULLへ変換する。
func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
