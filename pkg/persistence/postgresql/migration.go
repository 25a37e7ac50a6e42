package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE process_models (
				id BIGSERIAL PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL,
				version DOUBLE PRECISION NOT NULL DEFAULT 0,
				state VARCHAR(20) NOT NULL CHECK (state IN ('DRAFT', 'RELEASED')),
				starter_subject_model_id BIGINT NOT NULL,
				definition JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE process_instances (
				id BIGSERIAL PRIMARY KEY,
				process_model_id BIGINT NOT NULL REFERENCES process_models(id),
				state VARCHAR(20) NOT NULL CHECK (state IN ('RUNNING', 'FINISHED')),
				start_user_id VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_process_instances_state ON process_instances(state);

			CREATE TABLE subjects (
				id BIGSERIAL PRIMARY KEY,
				process_instance_id BIGINT NOT NULL REFERENCES process_instances(id) ON DELETE CASCADE,
				subject_model_id BIGINT NOT NULL,
				user_id VARCHAR(255) NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_subjects_process_instance_id ON subjects(process_instance_id);

			CREATE TABLE subject_states (
				id BIGSERIAL PRIMARY KEY,
				subject_id BIGINT NOT NULL REFERENCES subjects(id) ON DELETE CASCADE,
				process_instance_id BIGINT NOT NULL REFERENCES process_instances(id) ON DELETE CASCADE,
				state_id BIGINT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_subject_states_subject_id ON subject_states(subject_id, id DESC);
		`,
		2: `
			CREATE TABLE event_logs (
				id BIGSERIAL PRIMARY KEY,
				case_id BIGINT NOT NULL,
				process_model_id BIGINT NOT NULL,
				timestamp VARCHAR(16) NOT NULL,
				activity VARCHAR(255) NOT NULL,
				resource VARCHAR(255) NOT NULL,
				state_type VARCHAR(20) NOT NULL,
				message_type TEXT NOT NULL DEFAULT '',
				recipient TEXT NOT NULL DEFAULT '',
				sender TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_event_logs_model_resource ON event_logs(process_model_id, resource);
			CREATE INDEX idx_event_logs_case_id ON event_logs(case_id);
		`,
	}
}
