package postgres

// Migration: одна версия схемы.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrations: схема сервиса. SQL встроен в код для упрощения деплоя.
// Новые миграции только добавляются в конец.
var Migrations = []Migration{
	{1, "members", migration001Members},
	{2, "posts", migration002Posts},
	{3, "leaderboard", migration003Leaderboard},
	{4, "streaks", migration004Streaks},
	{5, "prize_pools", migration005PrizePools},
	{6, "sync_runs", migration006SyncRuns},
}

var migration001Members = `
CREATE TABLE IF NOT EXISTS users (
    id VARCHAR(128) PRIMARY KEY,
    username VARCHAR(255) NOT NULL DEFAULT '',
    display_name VARCHAR(255) NOT NULL DEFAULT '',
    avatar_url TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS communities (
    id VARCHAR(128) PRIMARY KEY,
    name VARCHAR(255) NOT NULL DEFAULT '',
    ledger_account_id VARCHAR(128) NOT NULL,
    currency VARCHAR(3) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS community_members (
    user_id VARCHAR(128) NOT NULL REFERENCES users(id),
    community_id VARCHAR(128) NOT NULL,
    joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, community_id)
);
CREATE TABLE IF NOT EXISTS tracked_channels (
    community_id VARCHAR(128) NOT NULL,
    channel_id VARCHAR(128) NOT NULL,
    kind VARCHAR(16) NOT NULL CHECK (kind IN ('forum', 'chat')),
    PRIMARY KEY (community_id, channel_id)
);
CREATE TABLE IF NOT EXISTS level_names (
    community_id VARCHAR(128) NOT NULL,
    level INTEGER NOT NULL CHECK (level BETWEEN 1 AND 10),
    title VARCHAR(64) NOT NULL,
    PRIMARY KEY (community_id, level)
);
`

var migration002Posts = `
CREATE TABLE IF NOT EXISTS posts (
    id VARCHAR(128) PRIMARY KEY,
    community_id VARCHAR(128) NOT NULL,
    channel_id VARCHAR(128) NOT NULL,
    author_id VARCHAR(128) NOT NULL REFERENCES users(id),
    kind VARCHAR(16) NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    views INTEGER NOT NULL DEFAULT 0,
    likes INTEGER NOT NULL DEFAULT 0,
    replies INTEGER NOT NULL DEFAULT 0,
    poll_votes INTEGER NOT NULL DEFAULT 0,
    pinned BOOLEAN NOT NULL DEFAULT FALSE,
    points NUMERIC(12,1) NOT NULL DEFAULT 0,
    points_breakdown JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    synced_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_posts_author_community ON posts(author_id, community_id, created_at);
CREATE INDEX IF NOT EXISTS idx_posts_community ON posts(community_id);
`

var migration003Leaderboard = `
CREATE TABLE IF NOT EXISTS leaderboard_entries (
    user_id VARCHAR(128) NOT NULL,
    community_id VARCHAR(128) NOT NULL,
    period_type VARCHAR(16) NOT NULL,
    period_start VARCHAR(32) NOT NULL,
    points NUMERIC(14,1) NOT NULL DEFAULT 0,
    rank INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, community_id, period_type, period_start)
);
CREATE INDEX IF NOT EXISTS idx_leaderboard_ranking
    ON leaderboard_entries(community_id, period_type, period_start, points DESC, user_id);
`

var migration004Streaks = `
CREATE TABLE IF NOT EXISTS streaks (
    user_id VARCHAR(128) NOT NULL,
    community_id VARCHAR(128) NOT NULL,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_activity_date DATE,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, community_id)
);
`

var migration005PrizePools = `
CREATE TABLE IF NOT EXISTS prize_pools (
    id UUID PRIMARY KEY,
    community_id VARCHAR(128) NOT NULL,
    amount_cents BIGINT NOT NULL CHECK (amount_cents > 0),
    currency VARCHAR(3) NOT NULL,
    period_type VARCHAR(16) NOT NULL,
    start_date TIMESTAMPTZ NOT NULL,
    end_date TIMESTAMPTZ NOT NULL,
    status VARCHAR(16) NOT NULL,
    created_by VARCHAR(128) NOT NULL DEFAULT '',
    checkout_id VARCHAR(128) UNIQUE,
    payment_id VARCHAR(128),
    winners_count INTEGER NOT NULL DEFAULT 0,
    total_paid_cents BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    distributed_at TIMESTAMPTZ,
    CHECK (end_date > start_date)
);
CREATE INDEX IF NOT EXISTS idx_prize_pools_community ON prize_pools(community_id, status, start_date);
CREATE TABLE IF NOT EXISTS payouts (
    id UUID PRIMARY KEY,
    pool_id UUID NOT NULL REFERENCES prize_pools(id),
    user_id VARCHAR(128) NOT NULL,
    rank INTEGER NOT NULL,
    points NUMERIC(14,1) NOT NULL,
    amount_cents BIGINT NOT NULL,
    currency VARCHAR(3) NOT NULL,
    status VARCHAR(16) NOT NULL,
    transfer_id VARCHAR(128),
    error TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (pool_id, rank)
);
`

var migration006SyncRuns = `
CREATE TABLE IF NOT EXISTS sync_runs (
    id UUID PRIMARY KEY,
    community_id VARCHAR(128) NOT NULL,
    status VARCHAR(16) NOT NULL,
    synced INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    failed_channels INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_sync_runs_community ON sync_runs(community_id, started_at DESC);
`
