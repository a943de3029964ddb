package db

import "fmt"

// SchemaSQL returns the database schema initialization SQL. The embedding
// dimension is interpolated into the chunk HNSW index definition because
// SurrealDB requires a literal dimension.
func SchemaSQL(embedDim int) string {
	return fmt.Sprintf(`
    -- ==========================================================================
    -- ACCOUNT TABLE (tenant scoping)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS account SCHEMALESS;

    -- ==========================================================================
    -- SOURCE TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS source SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS account ON source TYPE record<account>;
    DEFINE FIELD IF NOT EXISTS kind ON source TYPE string;
    DEFINE FIELD IF NOT EXISTS title ON source TYPE string;
    DEFINE FIELD IF NOT EXISTS url ON source TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS content ON source TYPE string;
    DEFINE FIELD IF NOT EXISTS metadata ON source TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS created_at ON source TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON source TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS source_account ON source FIELDS account;

    -- ==========================================================================
    -- CHUNK TABLE (retrieval unit, owned by its source)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS chunk SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS account ON chunk TYPE record<account>;
    DEFINE FIELD IF NOT EXISTS source ON chunk TYPE record<source>;
    DEFINE FIELD IF NOT EXISTS content ON chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS position ON chunk TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS metadata ON chunk TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS embedding ON chunk TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS created_at ON chunk TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS chunk_account ON chunk FIELDS account;
    DEFINE INDEX IF NOT EXISTS chunk_source ON chunk FIELDS source;
    DEFINE INDEX IF NOT EXISTS chunk_embedding ON chunk FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;
    DEFINE ANALYZER IF NOT EXISTS chunk_analyzer TOKENIZERS class FILTERS lowercase, ascii, snowball(english);
    DEFINE INDEX IF NOT EXISTS chunk_content_ft ON chunk FIELDS content FULLTEXT ANALYZER chunk_analyzer BM25;

    -- ==========================================================================
    -- CONVERSATION TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS conversation SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS account ON conversation TYPE record<account>;
    DEFINE FIELD IF NOT EXISTS user_id ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS parent ON conversation TYPE option<record<conversation>>;
    DEFINE FIELD IF NOT EXISTS model ON conversation TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS temperature ON conversation TYPE option<float>;
    DEFINE FIELD IF NOT EXISTS top_k ON conversation TYPE option<int>;
    DEFINE FIELD IF NOT EXISTS top_p ON conversation TYPE option<float>;
    DEFINE FIELD IF NOT EXISTS max_tokens ON conversation TYPE option<int>;
    DEFINE FIELD IF NOT EXISTS generating ON conversation TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS created_at ON conversation TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON conversation TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS conversation_account ON conversation FIELDS account;

    -- ==========================================================================
    -- MESSAGE TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS message SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS conversation ON message TYPE record<conversation>;
    DEFINE FIELD IF NOT EXISTS role ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS done ON message TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS similar_chunk_ids ON message TYPE option<array<record<chunk>>>;
    DEFINE FIELD IF NOT EXISTS metadata ON message TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS created_at ON message TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS message_conversation ON message FIELDS conversation;

    -- ==========================================================================
    -- TOOL_SERVER TABLE (external MCP endpoints)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS tool_server SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS account ON tool_server TYPE record<account>;
    DEFINE FIELD IF NOT EXISTS name ON tool_server TYPE string;
    DEFINE FIELD IF NOT EXISTS transport ON tool_server TYPE string;
    DEFINE FIELD IF NOT EXISTS command ON tool_server TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS args ON tool_server TYPE option<array<string>>;
    DEFINE FIELD IF NOT EXISTS env ON tool_server TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS endpoint ON tool_server TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS headers ON tool_server TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS token ON tool_server TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS api_key ON tool_server TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS status ON tool_server TYPE string DEFAULT "disconnected";
    DEFINE FIELD IF NOT EXISTS last_error ON tool_server TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS latency_ms ON tool_server TYPE option<int>;
    DEFINE FIELD IF NOT EXISTS tools_cache ON tool_server FLEXIBLE TYPE option<array>;
    DEFINE FIELD IF NOT EXISTS prompts_cache ON tool_server FLEXIBLE TYPE option<array>;
    DEFINE FIELD IF NOT EXISTS resources_cache ON tool_server FLEXIBLE TYPE option<array>;
    DEFINE FIELD IF NOT EXISTS last_connected_at ON tool_server TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS created_at ON tool_server TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS tool_server_name ON tool_server FIELDS account, name UNIQUE;

    -- ==========================================================================
    -- TOOL_BINDING TABLE (conversation <-> tool server)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS tool_binding SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS conversation ON tool_binding TYPE record<conversation>;
    DEFINE FIELD IF NOT EXISTS tool_server ON tool_binding TYPE record<tool_server>;
    DEFINE FIELD IF NOT EXISTS enabled ON tool_binding TYPE bool DEFAULT true;
    DEFINE FIELD IF NOT EXISTS tool_call_count ON tool_binding TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS last_tool_call_at ON tool_binding TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS created_at ON tool_binding TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS tool_binding_pair ON tool_binding FIELDS conversation, tool_server UNIQUE;

    -- ==========================================================================
    -- INGEST_JOB TABLE (persisted background jobs)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS ingest_job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS job_type ON ingest_job TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON ingest_job TYPE string DEFAULT "pending";
    DEFINE FIELD IF NOT EXISTS account_id ON ingest_job TYPE string;
    DEFINE FIELD IF NOT EXISTS source_ids ON ingest_job TYPE option<array<string>>;
    DEFINE FIELD IF NOT EXISTS options ON ingest_job TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS total ON ingest_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS progress ON ingest_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS result ON ingest_job TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS error ON ingest_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS started_at ON ingest_job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS completed_at ON ingest_job TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS ingest_job_status ON ingest_job FIELDS status;
`, embedDim)
}
