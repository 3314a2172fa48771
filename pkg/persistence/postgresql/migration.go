package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE projects (
				id TEXT PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				document JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_projects_updated_at ON projects(updated_at);
		`,
		2: `
			-- Module ids referenced by each project, for lookups by module
			ALTER TABLE projects ADD COLUMN module_ids TEXT[] NOT NULL DEFAULT '{}';

			CREATE INDEX idx_projects_module_ids ON projects USING GIN (module_ids);
		`,
	}
}
