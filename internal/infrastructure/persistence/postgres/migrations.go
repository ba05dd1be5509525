package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CURRICULUM STRUCTURE
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Courses and their authored node structure.

CREATE TABLE IF NOT EXISTS courses (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    published BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS curriculum_nodes (
    course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    chapter_id TEXT NOT NULL,
    section_id TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    difficulty DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    content_density DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    duration_minutes INTEGER NOT NULL DEFAULT 0,
    xp_reward INTEGER NOT NULL DEFAULT 0,
    static_prereqs TEXT[] NOT NULL DEFAULT '{}',
    position INTEGER NOT NULL DEFAULT 0,

    PRIMARY KEY (course_id, chapter_id, section_id),
    CONSTRAINT valid_difficulty CHECK (difficulty >= 0 AND difficulty <= 1),
    CONSTRAINT valid_density CHECK (content_density >= 0 AND content_density <= 1)
);

CREATE INDEX IF NOT EXISTS idx_curriculum_nodes_order
    ON curriculum_nodes(course_id, position);
`

const migration001Down = `
DROP TABLE IF EXISTS curriculum_nodes;
DROP TABLE IF EXISTS courses;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: LEARNER STATE
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Learner profiles: the smoothed, derived portrait per learner and course.

CREATE TABLE IF NOT EXISTS learner_profiles (
    learner_id TEXT NOT NULL,
    course_id TEXT NOT NULL,
    pace TEXT NOT NULL DEFAULT 'moderate',
    confidence TEXT NOT NULL DEFAULT 'moderate',
    engagement_score DOUBLE PRECISION NOT NULL DEFAULT 50,
    retention_score DOUBLE PRECISION NOT NULL DEFAULT 50,
    style_video DOUBLE PRECISION NOT NULL DEFAULT 0.25,
    style_code DOUBLE PRECISION NOT NULL DEFAULT 0.25,
    style_text DOUBLE PRECISION NOT NULL DEFAULT 0.25,
    style_interactive DOUBLE PRECISION NOT NULL DEFAULT 0.25,
    quiz_accuracy DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    hint_reliance DOUBLE PRECISION NOT NULL DEFAULT 0.2,
    code_success DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    replay_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
    speed_score DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    sample_count INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (learner_id, course_id),
    CONSTRAINT valid_pace CHECK (pace IN ('slow', 'moderate', 'fast')),
    CONSTRAINT valid_confidence CHECK (confidence IN ('low', 'moderate', 'high', 'expert'))
);

-- Section aggregates: accumulated behavior counters per learner and section.

CREATE TABLE IF NOT EXISTS section_aggregates (
    learner_id TEXT NOT NULL,
    course_id TEXT NOT NULL,
    chapter_id TEXT NOT NULL,
    section_id TEXT NOT NULL,
    pause_count INTEGER NOT NULL DEFAULT 0,
    replay_count INTEGER NOT NULL DEFAULT 0,
    replay_spans JSONB NOT NULL DEFAULT '[]'::jsonb,
    seek_count INTEGER NOT NULL DEFAULT 0,
    quiz_correct INTEGER NOT NULL DEFAULT 0,
    quiz_incorrect INTEGER NOT NULL DEFAULT 0,
    quiz_latency_ms BIGINT NOT NULL DEFAULT 0,
    quiz_completed BOOLEAN NOT NULL DEFAULT FALSE,
    code_exec_success INTEGER NOT NULL DEFAULT 0,
    code_exec_fail INTEGER NOT NULL DEFAULT 0,
    code_edit_count INTEGER NOT NULL DEFAULT 0,
    hints_quiz INTEGER NOT NULL DEFAULT 0,
    hints_code INTEGER NOT NULL DEFAULT 0,
    peer_solution_views INTEGER NOT NULL DEFAULT 0,
    video_watched_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
    playback_speed DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    time_spent_ms BIGINT NOT NULL DEFAULT 0,
    event_count INTEGER NOT NULL DEFAULT 0,
    first_event_at TIMESTAMP WITH TIME ZONE,
    last_event_at TIMESTAMP WITH TIME ZONE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (learner_id, section_id)
);

CREATE INDEX IF NOT EXISTS idx_section_aggregates_learner
    ON section_aggregates(learner_id, last_event_at DESC);

-- Chapter completion per learner, feeds static prerequisite checks.

CREATE TABLE IF NOT EXISTS learner_progress (
    learner_id TEXT NOT NULL,
    course_id TEXT NOT NULL,
    chapter_id TEXT NOT NULL,
    performance DOUBLE PRECISION NOT NULL DEFAULT 0,
    completed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (learner_id, course_id, chapter_id),
    CONSTRAINT valid_performance CHECK (performance >= 0 AND performance <= 1)
);
`

const migration002Down = `
DROP TABLE IF EXISTS learner_progress;
DROP TABLE IF EXISTS section_aggregates;
DROP TABLE IF EXISTS learner_profiles;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: COLLECTIVE INTELLIGENCE
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Append-only population outcome log, the input of batch aggregation.

CREATE TABLE IF NOT EXISTS outcome_log (
    id BIGSERIAL PRIMARY KEY,
    learner_id TEXT NOT NULL,
    course_id TEXT NOT NULL,
    chapter_id TEXT NOT NULL,
    completed_before TEXT[] NOT NULL DEFAULT '{}',
    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    completed_at TIMESTAMP WITH TIME ZONE NOT NULL,
    duration_minutes DOUBLE PRECISION NOT NULL DEFAULT 0,
    success BOOLEAN NOT NULL,
    sections JSONB NOT NULL DEFAULT '[]'::jsonb,

    CONSTRAINT outcome_log_dedup UNIQUE (learner_id, chapter_id, completed_at)
);

CREATE INDEX IF NOT EXISTS idx_outcome_log_course
    ON outcome_log(course_id, completed_at);

-- Versioned emergent curriculum snapshots. The full document is stored as
-- JSONB; readers always take the highest version, so publication is atomic.

CREATE TABLE IF NOT EXISTS curriculum_snapshots (
    course_id TEXT NOT NULL,
    version BIGINT NOT NULL,
    generated_at TIMESTAMP WITH TIME ZONE NOT NULL,
    data JSONB NOT NULL,

    PRIMARY KEY (course_id, version)
);

CREATE INDEX IF NOT EXISTS idx_curriculum_snapshots_latest
    ON curriculum_snapshots(course_id, version DESC);
`

const migration003Down = `
DROP TABLE IF EXISTS curriculum_snapshots;
DROP TABLE IF EXISTS outcome_log;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: ORCHESTRATION DECISIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
-- Every proposed orchestration decision and how the learner resolved it.

CREATE TABLE IF NOT EXISTS decision_log (
    id TEXT PRIMARY KEY,
    learner_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    action TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    priority DOUBLE PRECISION NOT NULL DEFAULT 0,
    section_id TEXT NOT NULL DEFAULT '',
    proposed_at TIMESTAMP WITH TIME ZONE NOT NULL,
    resolved_at TIMESTAMP WITH TIME ZONE,
    resolution TEXT
);

CREATE INDEX IF NOT EXISTS idx_decision_log_learner
    ON decision_log(learner_id, proposed_at DESC);
`

const migration004Down = `
DROP TABLE IF EXISTS decision_log;
`
