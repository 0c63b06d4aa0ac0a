package postgres

const (
	queryGetEvent = `
		SELECT e.id::text,
		       e.created_by::text,
		       COALESCE(array_agg(v.user_id::text ORDER BY v.joined_at)
		                FILTER (WHERE v.user_id IS NOT NULL), '{}')
		FROM events AS e
		LEFT JOIN event_volunteers AS v ON v.event_id = e.id
		WHERE e.id = $1::uuid
		GROUP BY e.id`

	queryGetUser = `
		SELECT id::text, COALESCE(username, ''), email
		FROM users
		WHERE id = $1::uuid`

	queryAppendMessage = `
		WITH m AS (
		    INSERT INTO event_messages (event_id, sender_id, content)
		    VALUES ($1::uuid, $2::uuid, $3)
		    RETURNING id, event_id, sender_id, content, created_at
		)
		SELECT m.id::text, m.event_id::text, m.sender_id::text,
		       COALESCE(u.username, ''), u.email, m.content, m.created_at
		FROM m
		JOIN users AS u ON u.id = m.sender_id`

	// Newest page first (keyset on created_at,id), flipped to oldest-first outside.
	queryListMessages = `
		SELECT page.id::text, page.event_id, page.sender_id, page.username, page.email, page.content, page.created_at
		FROM (
		    SELECT m.id, m.event_id::text AS event_id, m.sender_id::text AS sender_id,
		           COALESCE(u.username, '') AS username, u.email, m.content, m.created_at
		    FROM event_messages AS m
		    JOIN users AS u ON u.id = m.sender_id
		    WHERE m.event_id = $1::uuid
		      AND (
		        $2::timestamptz IS NULL
		        OR m.created_at < $2
		        OR (m.created_at = $2 AND m.id < $3::uuid)
		      )
		    ORDER BY m.created_at DESC, m.id DESC
		    LIMIT $4
		) AS page
		ORDER BY page.created_at ASC, page.id ASC`
)
