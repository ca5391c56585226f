package sqlinline

const QSelectProfileDownloads = `--sql 34d4e7d9-6c07-401a-9f76-a35d31fcb6a2
select case when downloads_day = current_date then downloads_today else 0 end
from profiles
where id = $1::text;
`

const QIncrementProfileDownloads = `--sql f5dfcf1b-effa-4222-ad70-a6166ab12e1d
insert into profiles(id, plan, downloads_today, downloads_day, updated_at)
values ($1::text, 'free', $2::int, current_date, now())
on conflict (id) do update
set downloads_today = case
        when profiles.downloads_day = current_date then profiles.downloads_today + excluded.downloads_today
        else excluded.downloads_today
    end,
    downloads_day = current_date,
    updated_at = now()
returning downloads_today;
`

const QSelectProfilePlan = `--sql 9bbbcdcd-1971-4b02-9037-089abd569236
select plan
from profiles
where id = $1::text;
`

const QUpsertProfilePlan = `--sql 2273838b-cc89-4e32-af45-d455edf52253
insert into profiles(id, plan, updated_at)
values ($1::text, $2::text, now())
on conflict (id) do update
set plan = excluded.plan,
    updated_at = now();
`
